package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	base := errors.New("boom")
	tests := []struct {
		name  string
		err   error
		kind  FailureKind
		after time.Duration
		perm  bool
	}{
		{name: "plain", err: base, kind: FailureOther},
		{name: "rate limited", err: RateLimited(base, 5*time.Second), kind: FailureRateLimited, after: 5 * time.Second},
		{name: "wrapped rate limited", err: fmt.Errorf("send: %w", RateLimited(base, time.Second)), kind: FailureRateLimited, after: time.Second},
		{name: "negative delay", err: RateLimited(base, -time.Second), kind: FailureRateLimited},
		{name: "forbidden", err: Forbidden(base), kind: FailureForbidden, perm: true},
		{name: "bad request", err: BadRequest(base), kind: FailureBadRequest, perm: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			kind, after := Classify(tt.err)
			if kind != tt.kind {
				t.Fatalf("kind = %v, want %v", kind, tt.kind)
			}
			if after != tt.after {
				t.Fatalf("after = %v, want %v", after, tt.after)
			}
			if got := IsPermanent(tt.err); got != tt.perm {
				t.Fatalf("IsPermanent = %v, want %v", got, tt.perm)
			}
		})
	}
}

func TestSendErrorUnwrap(t *testing.T) {
	t.Parallel()
	base := errors.New("chat not found")
	err := BadRequest(base)
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to reach the wrapped error")
	}
	if got := err.Error(); got != "bad_request: chat not found" {
		t.Fatalf("Error() = %q", got)
	}
}
