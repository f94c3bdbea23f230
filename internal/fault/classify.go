package fault

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// rule maps lower-cased markers in a provider error text to a kind.
// Status codes only match as whole tokens so digits inside request ids
// or timestamps never select a rule.
type rule struct {
	kind    Kind
	codes   *regexp.Regexp
	markers []string
}

// providerRules is the only place provider error strings are inspected.
// Order matters: the first matching rule wins.
var providerRules = []rule{
	{kind: CompletionAuth, codes: regexp.MustCompile(`\b(401|403)\b`), markers: []string{
		"unauthorized", "unauthenticated", "authenticationerror",
		"invalid api key", "invalidapikey", "invalid_api_key", "accessdenied",
		"permission denied", "permissiondenied", "signaturedoesnotmatch",
	}},
	{kind: CompletionRateLimited, codes: regexp.MustCompile(`\b429\b`), markers: []string{
		"rate limit", "ratelimit", "rate_limit", "too many requests",
		"toomanyrequests", "quota", "resource_exhausted", "resourceexhausted",
		"serveroverloaded", "requestburst",
	}},
	{kind: Unintelligible, markers: []string{
		"invalidargument", "invalid_argument", "20000003", "silent audio",
		"no speech", "unsupported audio",
	}},
	{kind: TranscriberUnavailable, markers: []string{
		"unavailable", "deadline exceeded", "deadlineexceeded", "connection refused",
		"no such host", "i/o timeout", "failed to connect", "websocket: bad handshake",
		"eof",
	}},
}

// Classify maps err to a kind using the provider rule table. Errors that
// already carry a kind keep it. fallback applies when no rule matches.
func Classify(err error, fallback Kind) Kind {
	if err == nil {
		return ""
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return unavailableFor(fallback)
	}

	text := strings.ToLower(err.Error())
	for _, r := range providerRules {
		if r.matches(text) {
			return adjust(r.kind, fallback)
		}
	}

	return fallback
}

func (r rule) matches(text string) bool {
	if r.codes != nil && r.codes.MatchString(text) {
		return true
	}
	for _, marker := range r.markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// FromProvider wraps a raw provider error into the taxonomy. Errors that
// are already categorized pass through unchanged.
func FromProvider(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return err
	}
	return Wrap(Classify(err, fallback), op, err)
}

// adjust keeps a matched kind inside the stage the fallback belongs to.
// Auth and rate-limit markers only mean something for the completion
// service; on the speech side they collapse into that stage's own kind.
func adjust(matched, fallback Kind) Kind {
	switch {
	case fallback.Completion():
		if matched.Completion() {
			return matched
		}
		return fallback
	case fallback.Transcription():
		if matched.Transcription() {
			return matched
		}
		return TranscriberUnavailable
	case fallback == SynthesisFailed:
		return SynthesisFailed
	default:
		return matched
	}
}

func unavailableFor(fallback Kind) Kind {
	if fallback.Transcription() {
		return TranscriberUnavailable
	}
	return fallback
}
