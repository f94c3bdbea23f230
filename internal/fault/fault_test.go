package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyProviderMarkers(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		fallback Kind
		want     Kind
	}{
		{name: "ark auth", err: errors.New("Error code: 401, AuthenticationError: the API key is invalid"), fallback: CompletionFailed, want: CompletionAuth},
		{name: "ark rate limit", err: errors.New("status 429 RateLimitExceeded.EndpointRPMExceeded"), fallback: CompletionFailed, want: CompletionRateLimited},
		{name: "quota", err: errors.New("QuotaExceeded: account quota exhausted"), fallback: CompletionFailed, want: CompletionRateLimited},
		{name: "generic completion", err: errors.New("internal server error"), fallback: CompletionFailed, want: CompletionFailed},
		{name: "speech unavailable", err: errors.New("rpc error: code = Unavailable desc = connection refused"), fallback: TranscriberUnavailable, want: TranscriberUnavailable},
		{name: "speech auth collapses", err: errors.New("403 permission denied"), fallback: TranscriberUnavailable, want: TranscriberUnavailable},
		{name: "bad audio", err: errors.New("rpc error: code = InvalidArgument desc = sample rate mismatch"), fallback: TranscriberUnavailable, want: Unintelligible},
		{name: "invalid argument on completion", err: errors.New("invalid_argument: messages"), fallback: CompletionFailed, want: CompletionFailed},
		{name: "tts anything", err: errors.New("429 too many requests"), fallback: SynthesisFailed, want: SynthesisFailed},
		{name: "server fault with 401 in request id", err: errors.New("Error code: 500 - InternalServiceError: request failed. Request id: 0217608781401234abcdef"), fallback: CompletionFailed, want: CompletionFailed},
		{name: "overload with 429 in request id", err: errors.New("status 503 ServiceUnavailable, request_id=20251019142955ab"), fallback: CompletionFailed, want: CompletionFailed},
		{name: "403 as token", err: errors.New("Error code: 403 - forbidden"), fallback: CompletionFailed, want: CompletionAuth},
		{name: "timeout", err: fmt.Errorf("recognize: %w", context.DeadlineExceeded), fallback: Unintelligible, want: TranscriberUnavailable},
	}

	for _, tc := range cases {
		if got := Classify(tc.err, tc.fallback); got != tc.want {
			t.Errorf("%s: Classify = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(Unintelligible, "google.recognize"))
	if got := Classify(err, CompletionFailed); got != Unintelligible {
		t.Fatalf("expected unintelligible, got %s", got)
	}
}

func TestSentinelsMatchByKind(t *testing.T) {
	err := FromProvider("ark.generate", errors.New("429 Too Many Requests"), CompletionFailed)
	if !errors.Is(err, ErrCompletionRateLimited) {
		t.Fatalf("expected rate-limited sentinel match, got %v", err)
	}
	if errors.Is(err, ErrCompletionAuth) {
		t.Fatalf("rate-limit error must not match auth sentinel")
	}
	if KindOf(errors.New("plain")) != Unexpected {
		t.Fatalf("plain errors should be unexpected")
	}
	if FromProvider("op", nil, CompletionFailed) != nil {
		t.Fatalf("nil error should stay nil")
	}
}

func TestNoticesDistinguishCompletionFailures(t *testing.T) {
	seen := map[string]Kind{}
	for _, kind := range []Kind{CompletionAuth, CompletionRateLimited, CompletionFailed} {
		msg := Notice(kind)
		if msg == "" {
			t.Fatalf("missing notice for %s", kind)
		}
		if other, ok := seen[msg]; ok {
			t.Fatalf("%s and %s share a notice", kind, other)
		}
		seen[msg] = kind
	}
	if Notice("bogus") != Notice(Unexpected) {
		t.Fatalf("unknown kinds should fall back to the unexpected notice")
	}
}
