package router

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"albumrelay/internal/relay"
	"albumrelay/internal/runtime/supervisor"
	"albumrelay/internal/storage"
	kit "albumrelay/internal/transport"
	logx "albumrelay/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Sender   kit.TextSender
	Logger   logx.Logger
	Services *Services
	Owners   []int64
}

// Reply sends text to the request's chat as a reply to the command message.
func (r *Request) Reply(ctx context.Context, text string, html bool) error {
	opt := &kit.SendOptions{DisablePreview: true, ReplyTo: r.Message.ID}
	if html {
		opt.ParseMode = "HTML"
	}
	_, err := r.Sender.SendText(ctx, r.Chat, text, opt)
	return err
}

// MediaHandler receives every inbound message that is not a command.
type MediaHandler interface {
	Handle(ctx context.Context, msg *kit.Message) error
}

type StatsPort interface {
	Stats() relay.Stats
}

// Services are the router's collaborators. Any field may be nil in tests.
type Services struct {
	Relay MediaHandler
	Stats StatsPort
	Audit storage.Store

	// Supervisors exposes subsystem supervisors for /stats.
	Supervisors *SupervisorRegistry
}

// Router turns updates into relay calls and command invocations. Media and
// plain text are handled inline on the dispatch loop so album parts keep their
// arrival order; commands run on a small worker pool.
type Router struct {
	mu       sync.RWMutex
	commands map[string]Command
	ordered  []Command
	owners   []int64

	log    logx.Logger
	sender kit.TextSender
	serv   *Services

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	workers int
	jobs    chan func()
}

func New(log logx.Logger, sender kit.TextSender, serv *Services, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if serv == nil {
		serv = &Services{}
	}
	return &Router{
		commands: map[string]Command{},
		owners:   slices.Clone(owners),
		log:      log,
		sender:   sender,
		serv:     serv,
		workers:  2,
		jobs:     make(chan func(), 64),
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := slices.Clone(owners)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) ownersSnapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.owners)
}

// SetCommands replaces the command registry and pushes the menu to Telegram
// when the sender supports it.
func (r *Router) SetCommands(ctx context.Context, cmds []Command) {
	byName := map[string]Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		ordered = append(ordered, c)
		byName[name] = c
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = c
				}
			}
		}
	}

	r.mu.Lock()
	r.commands = byName
	r.ordered = ordered
	r.mu.Unlock()

	up, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := buildMenu(ordered)
	go func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, menu); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	}()
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.ordered)
}

func (r *Router) setSupervisor(sup *supervisor.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.serv.Supervisors.Set("telegram.router", sup)
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := range r.workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					r.runJob(i, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		r.setSupervisor(sup, false)
		close(r.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.serv.Supervisors.Delete("telegram.router")
		r.setSupervisor(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	if msg.Media == nil && strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		r.routeCommand(ctx, msg)
		return
	}
	if r.serv.Relay == nil {
		return
	}
	// Rejections (plain text included) are answered by the relay itself.
	if err := r.serv.Relay.Handle(ctx, msg); errors.Is(err, relay.ErrStopped) {
		r.log.Warn("relay stopped, message ignored", logx.Int64("chat_id", msg.ChatID), logx.Int("msg_id", msg.ID))
	}
}

func (r *Router) routeCommand(ctx context.Context, msg *kit.Message) {
	fields := strings.Fields(strings.TrimSpace(msg.Text))
	word := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	r.mu.RLock()
	cmd, ok := r.commands[word]
	r.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	reply := func(text string) {
		_, _ = r.sender.SendText(ctx, chat, text, &kit.SendOptions{ReplyTo: msg.ID})
	}
	if !ok {
		reply("Unknown command. Try /help")
		return
	}

	owners := r.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !slices.Contains(owners, msg.FromID) {
		reply("unauthorized")
		return
	}

	rid := newReqID()
	req := &Request{
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    fields[1:],
		ReqID:   rid,
		Sender:  r.sender,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		Services: r.serv,
		Owners:   owners,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cmd.Timeout),
	)
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		reply("busy, try again")
	}
}

var ridSeq atomic.Uint64

// newReqID returns a short, sortable request id: base36 time plus a sequence.
func newReqID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + strconv.FormatUint(ridSeq.Add(1), 36)
}
