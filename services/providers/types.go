package providers

import (
	"errors"

	"lyrics-sync-go/services/lyrics"
)

// ErrNotFound marks a confirmed "this source has no lyrics for the track" answer.
// Only errors wrapping it are eligible for negative caching.
var ErrNotFound = errors.New("no lyrics found")

// Outcome is the result kind of a single provider attempt
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeNotFound
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ProviderError represents an error from a provider with additional context
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a transient failure: network errors, timeouts, bad
// responses. These are never cached.
func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// NewNotFound creates a confirmed-absence error for the provider.
func NewNotFound(provider, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Err:      ErrNotFound,
	}
}

// IsNotFound reports whether err is a confirmed absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Classify maps the return values of FetchLyrics to an Outcome. A nil error with
// nothing to show counts as NotFound.
func Classify(result *lyrics.Lyrics, err error) Outcome {
	switch {
	case err == nil && !result.Empty():
		return OutcomeFound
	case err == nil, IsNotFound(err):
		return OutcomeNotFound
	default:
		return OutcomeTransient
	}
}
