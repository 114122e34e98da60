package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	Begin Type = iota + 1
	EnterDir
	ExitDir
	EnterFile
	ProcessData
	ExitFile
	Finish
)

var typeNames = [...]string{
	Begin:       "Begin",
	EnterDir:    "EnterDir",
	ExitDir:     "ExitDir",
	EnterFile:   "EnterFile",
	ProcessData: "ProcessData",
	ExitFile:    "ExitFile",
	Finish:      "Finish",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single progress notification from a running operation.
// Events are delivered in traversal order.
type Event struct {
	Timestamp time.Time
	Path      string // entry name relative to the operation root
	Size      int64  // file size (EnterFile) or bytes in this block (ProcessData)
	Type      Type
}

// New returns an event of type t stamped with the current time.
func New(t Type, path string, size int64) Event {
	return Event{Type: t, Path: path, Size: size, Timestamp: time.Now()}
}
