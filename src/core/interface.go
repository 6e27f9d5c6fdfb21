package core

import (
	"context"
	"errors"
	"time"

	"mxshs/h2hcrawler/src/domain"
)

// ErrTimeout is returned by Navigator.Load when the wait selector did not
// appear in time.
var ErrTimeout = errors.New("navigation timed out")

// SelectResult is the outcome of choosing an option in a dropdown.
type SelectResult int

const (
	SelectApplied SelectResult = iota
	SelectNotPresent
	SelectFailed
)

func (r SelectResult) String() string {
	switch r {
	case SelectApplied:
		return "applied"
	case SelectNotPresent:
		return "not_present"
	default:
		return "failed"
	}
}

// Navigator is one exclusive browser session. It is not safe for concurrent
// use; every in-flight match owns its own.
type Navigator interface {
	// Load navigates to url and waits up to timeout for waitSelector. It
	// returns the rendered document.
	Load(ctx context.Context, url, waitSelector string, timeout time.Duration) (string, error)
	// SelectOption sets the dropdown with the given element id to value and
	// fires its change event. The error is non-nil only for SelectFailed.
	SelectOption(ctx context.Context, elementID, value string, timeout time.Duration) (SelectResult, error)
	// Source returns the current rendered document.
	Source(ctx context.Context) (string, error)
	Close() error
}

// Browser hands out sessions.
type Browser interface {
	NewSession(ctx context.Context) (Navigator, error)
}

// MatchParser turns one match id into an outcome. Implementations never
// return an error; every failure is an Outcome kind.
type MatchParser interface {
	ParseMatch(ctx context.Context, id domain.MatchID) domain.Outcome
}

// Selector names the page elements the parser waits on and drives.
type Selector struct {
	HomeTable    string
	AwayTable    string
	RangeSelects []string
	RivalSelect  string
}
