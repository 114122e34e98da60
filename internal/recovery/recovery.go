// Package recovery implements scoped, user-selectable recovery actions for
// file-level failures.
//
// Each operation site that can fail offers the actions it knows how to apply
// itself. Callers higher in the traversal push scopes offering the actions
// they can apply (for example skipping the current entry). On failure the
// Policy collects every applicable action, innermost first, and asks its
// Handler to choose one. A choice owned by the failing site is returned to
// it directly; a choice owned by an enclosing scope travels up as an
// *Unwind error and is consumed by that scope with Caught.
package recovery

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"syscall"
)

// Action names a recovery action.
type Action int

const (
	Abort Action = iota
	Skip
	Retry
	Overwrite
	Duplicate
	WriteInto
	CopyInstead
)

var actionNames = [...]string{
	Abort:       "abort",
	Skip:        "skip",
	Retry:       "retry",
	Overwrite:   "overwrite",
	Duplicate:   "duplicate",
	WriteInto:   "write-into",
	CopyInstead: "copy-instead",
}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// ParseAction parses the name produced by Action.String.
func ParseAction(s string) (Action, error) {
	for i, n := range actionNames {
		if n == s {
			return Action(i), nil
		}
	}
	return Abort, fmt.Errorf("unknown recovery action %q", s)
}

// Handler chooses one of the offered actions for err. Returning an action
// that was not offered is treated as Abort.
type Handler func(err error, offered []Action) Action

// Retryable is implemented by errors that know whether the failed operation
// may be attempted again.
type Retryable interface {
	Retryable() bool
}

// DirConflict is implemented by fs.ErrExist errors that know whether the
// entry in the way is a directory. WriteInto only applies to directories.
type DirConflict interface {
	DirExists() bool
}

// Unwind carries an action chosen for an enclosing scope up the call chain.
type Unwind struct {
	Err    error
	Action Action
}

func (u *Unwind) Error() string {
	return fmt.Sprintf("%s: %v", u.Action, u.Err)
}

func (u *Unwind) Unwrap() error { return u.Err }

// Caught reports whether err is an Unwind targeting action a.
func Caught(err error, a Action) bool {
	var u *Unwind
	return errors.As(err, &u) && u.Action == a
}

// Policy holds the handler and the stack of open scopes for one task. It is
// not safe for concurrent use; every task owns its own Policy.
type Policy struct {
	handler Handler
	scopes  [][]Action
}

// New returns a Policy that consults h. A nil handler aborts on every error.
func New(h Handler) *Policy {
	return &Policy{handler: h}
}

// Scope offers actions to everything called until the returned function is
// invoked. Scopes must be closed in LIFO order.
func (p *Policy) Scope(actions ...Action) (closeScope func()) {
	depth := len(p.scopes)
	p.scopes = append(p.scopes, actions)
	return func() { p.scopes = p.scopes[:depth] }
}

// Resolve asks the handler how to recover from err. local lists the actions
// the caller applies itself. It returns:
//   - (a, nil) when a local action a was chosen;
//   - (a, *Unwind) when an action of an enclosing scope was chosen;
//   - (Abort, err) when nothing applies or the handler aborts.
func (p *Policy) Resolve(err error, local ...Action) (Action, error) {
	if err == nil {
		return Abort, nil
	}
	var u *Unwind
	if errors.As(err, &u) {
		return u.Action, err
	}
	if p == nil || p.handler == nil {
		return Abort, err
	}

	offered := p.offered(err, local)
	if len(offered) == 0 {
		return Abort, err
	}
	a := p.handler(err, offered)
	switch {
	case a == Abort || !slices.Contains(offered, a):
		return Abort, err
	case slices.Contains(local, a):
		return a, nil
	default:
		return a, &Unwind{Action: a, Err: err}
	}
}

// Do runs op, offering Retry when the error allows it. Retry re-runs op in
// place. The returned action is one of local (with a nil error), or Abort
// together with the error to propagate.
func (p *Policy) Do(op func() error, local ...Action) (Action, error) {
	withRetry := append(slices.Clone(local), Retry)
	for {
		err := op()
		if err == nil {
			return Abort, nil
		}
		a, rerr := p.Resolve(err, withRetry...)
		if rerr == nil && a == Retry {
			continue
		}
		return a, rerr
	}
}

func (p *Policy) offered(err error, local []Action) []Action {
	var out []Action
	add := func(a Action) {
		if applicable(a, err) && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	for _, a := range local {
		add(a)
	}
	for i := len(p.scopes) - 1; i >= 0; i-- {
		for _, a := range p.scopes[i] {
			add(a)
		}
	}
	return out
}

func applicable(a Action, err error) bool {
	switch a {
	case Retry:
		var r Retryable
		return errors.As(err, &r) && r.Retryable()
	case Overwrite, Duplicate:
		return errors.Is(err, fs.ErrExist)
	case WriteInto:
		var d DirConflict
		if errors.As(err, &d) && !d.DirExists() {
			return false
		}
		return errors.Is(err, fs.ErrExist)
	case CopyInstead:
		return errors.Is(err, syscall.EXDEV)
	case Skip:
		return true
	default:
		return false
	}
}
