package engine

import (
	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/taskqueue"
	"github.com/bamsammich/arcfs/internal/vfs"
)

// CopyTask defers Copy for a taskqueue.
func (e *Engine) CopyTask(src vfs.DirType, names []string, dst vfs.Resolved) taskqueue.Task {
	return func(cs *cancel.State) error { return e.Copy(cs, src, names, dst) }
}

// MoveTask defers Move for a taskqueue.
func (e *Engine) MoveTask(src vfs.DirType, names []string, dst vfs.Resolved) taskqueue.Task {
	return func(cs *cancel.State) error { return e.Move(cs, src, names, dst) }
}

// DeleteTask defers Delete for a taskqueue.
func (e *Engine) DeleteTask(src vfs.DirType, names []string) taskqueue.Task {
	return func(cs *cancel.State) error { return e.Delete(cs, src, names) }
}

// MkdirTask defers Mkdir for a taskqueue.
func (e *Engine) MkdirTask(dst vfs.Resolved) taskqueue.Task {
	return func(cs *cancel.State) error { return e.Mkdir(cs, dst) }
}

// UnpackTask defers UnpackToTemp for a taskqueue. done receives the path of
// the unpacked file.
func (e *Engine) UnpackTask(src vfs.DirType, name string, done func(path string)) taskqueue.Task {
	return func(cs *cancel.State) error {
		_, err := e.UnpackToTemp(cs, src, name, done)
		return err
	}
}
