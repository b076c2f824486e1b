package adapter

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "albumrelay/internal/transport"
)

var (
	retryAfterRx = regexp.MustCompile(`(?i)retry after (\d+)`)
	codeRx       = regexp.MustCompile(`\((\d{3})\)\s*$`)
)

// mapError converts telebot failures into *kit.SendError so the relay can tell
// rate limits apart from permanent refusals. Unknown errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *kit.SendError
	if errors.As(err, &se) {
		return err
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return kit.RateLimited(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return kit.RateLimited(err, time.Duration(floodPtr.RetryAfter)*time.Second)
	}

	var te *tele.Error
	if errors.As(err, &te) && te != nil {
		if mapped := byCode(err, te.Code, te.Description); mapped != nil {
			return mapped
		}
	}

	msg := err.Error()
	if m := codeRx.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		if mapped := byCode(err, code, msg); mapped != nil {
			return mapped
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "too many requests"):
		return kit.RateLimited(err, retryAfter(msg))
	case strings.Contains(lower, "forbidden"):
		return kit.Forbidden(err)
	case strings.Contains(lower, "bad request"):
		return kit.BadRequest(err)
	}
	return err
}

func byCode(err error, code int, desc string) error {
	switch code {
	case 429:
		return kit.RateLimited(err, retryAfter(desc))
	case 403:
		return kit.Forbidden(err)
	case 400:
		return kit.BadRequest(err)
	}
	return nil
}

func retryAfter(s string) time.Duration {
	if m := retryAfterRx.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Second
}
