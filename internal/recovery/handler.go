package recovery

import (
	"errors"
	"io/fs"
	"slices"
)

// Prefer returns a handler picking the first of prefs that is offered.
func Prefer(prefs ...Action) Handler {
	return func(_ error, offered []Action) Action {
		for _, a := range prefs {
			if slices.Contains(offered, a) {
				return a
			}
		}
		return Abort
	}
}

// Strategy is a fixed, non-interactive handler configuration.
type Strategy struct {
	OnConflict Action // Overwrite, Duplicate, Skip or Abort
	OnError    Action // Skip, Retry or Abort
	Retries    int    // bound on consecutive Retry choices for one error site
}

// Handler builds a Handler from the strategy. Existing directories are
// always merged (WriteInto) before OnConflict is consulted, and a rename
// that crosses devices always falls back to copying.
func (s Strategy) Handler() Handler {
	retries := 0
	return func(err error, offered []Action) Action {
		if errors.Is(err, fs.ErrExist) {
			if slices.Contains(offered, WriteInto) {
				return WriteInto
			}
			return pick(offered, s.OnConflict)
		}
		if slices.Contains(offered, CopyInstead) {
			return CopyInstead
		}
		if s.OnError == Retry && slices.Contains(offered, Retry) {
			if retries < s.Retries {
				retries++
				return Retry
			}
			retries = 0
			return pick(offered, Skip)
		}
		retries = 0
		return pick(offered, s.OnError)
	}
}

func pick(offered []Action, a Action) Action {
	if slices.Contains(offered, a) {
		return a
	}
	return Abort
}
