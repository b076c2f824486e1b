package router

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const startText = "✅ The bot is up and ready. 📌 " +
	"Send a photo or a video (or a whole album) and I will post it to the chat."

// recentDispatches is how many audit records /stats shows.
const recentDispatches = 5

// Builtins returns the bot's command set.
func Builtins() []Command {
	return []Command{
		{
			Name:        "start",
			Description: "Start the bot",
			Handle: func(ctx context.Context, req *Request) error {
				req.Logger.Info("start command used")
				return req.Reply(ctx, startText, false)
			},
		},
		{
			Name:        "id",
			Description: "Show this chat's id",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, fmt.Sprintf("Chat id of this chat: <code>%d</code>", req.Chat.ChatID), true)
			},
		},
		{
			Name:        "help",
			Aliases:     []string{"h"},
			Description: "List commands",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, helpText(req), true)
			},
		},
		{
			Name:        "stats",
			Description: "Relay status",
			Access:      AccessOwnerOnly,
			Timeout:     5 * time.Second,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, statsText(ctx, req, time.Now()), true)
			},
		},
	}
}

func helpText(req *Request) string {
	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, c := range Builtins() {
		if c.Access == AccessOwnerOnly && !slices.Contains(req.Owners, req.FromID) {
			continue
		}
		fmt.Fprintf(&b, "/%s - %s\n", c.Name, html.EscapeString(c.Description))
	}
	b.WriteString("\nAnything else: send photos or videos and they are forwarded as albums.")
	return b.String()
}

func statsText(ctx context.Context, req *Request, now time.Time) string {
	var b strings.Builder
	serv := req.Services

	b.WriteString("<b>Relay</b>\n")
	if serv == nil || serv.Stats == nil {
		b.WriteString("not running\n")
	} else {
		st := serv.Stats.Stats()
		fmt.Fprintf(&b, "pending groups: %d (timers %d)\n", st.Groups, st.Timers)
		if !st.Oldest.IsZero() {
			fmt.Fprintf(&b, "oldest group: %s\n", humanize.RelTime(st.Oldest, now, "ago", "from now"))
		}
		fmt.Fprintf(&b, "accepted %d, rejected %d\n", st.Accepted, st.Rejected)
		fmt.Fprintf(&b, "flushes: %d ok, %d partial, %d failed, %d swept\n", st.Succeeded, st.Partial, st.Failed, st.Swept)
		fmt.Fprintf(&b, "workers: %d active, %d panics\n", st.Workers.Active, st.Workers.Panics)
	}

	if serv != nil && serv.Supervisors != nil {
		counters := serv.Supervisors.Counters()
		if names := serv.Supervisors.Names(); len(names) > 0 {
			b.WriteString("\n<b>Supervisors</b>\n")
			for _, name := range names {
				c := counters[name]
				fmt.Fprintf(&b, "<code>%s</code> active=%d started=%d restarts=%d panics=%d\n",
					html.EscapeString(name), c.Active, c.Started, c.Restarts, c.Panics)
			}
		}
	}

	if serv != nil && serv.Audit != nil {
		recs, err := serv.Audit.RecentDispatches(ctx, recentDispatches)
		b.WriteString("\n<b>Recent</b>\n")
		switch {
		case err != nil:
			fmt.Fprintf(&b, "unavailable: %s\n", html.EscapeString(err.Error()))
		case len(recs) == 0:
			b.WriteString("nothing yet\n")
		}
		for _, r := range recs {
			fmt.Fprintf(&b, "%s %s %s %d/%d from %s\n",
				humanize.RelTime(r.At, now, "ago", "from now"),
				html.EscapeString(r.Event),
				html.EscapeString(r.Status),
				r.Sent, r.Items,
				html.EscapeString(r.Sender),
			)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
