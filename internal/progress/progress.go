// Package progress is the run-scoped structured log for gen, gc,
// clear-all and sync runs. Sections nest; entity marks carry the
// acting section path so a consumer can rebuild the tree.
package progress

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionRemoved Action = "removed"
	ActionSkipped Action = "skipped"
	ActionWarning Action = "warning"
)

// Mark is one reported entity event.
type Mark struct {
	Section    []string `json:"section"`
	EntityKind string   `json:"entity_kind"`
	RefID      string   `json:"ref_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Action     Action   `json:"action"`
	Detail     string   `json:"detail,omitempty"`
	TS         string   `json:"ts" format:"date-time"`
}

// Reporter receives run events. Implementations must be safe for use
// from a single run goroutine; Section returns a closer that pops the
// section when called.
type Reporter interface {
	Section(label string) func()
	MarkCreated(entityKind, refID, name string)
	MarkUpdated(entityKind, refID, name string)
	MarkRemoved(entityKind, refID, name string)
	MarkSkipped(entityKind, refID, name, detail string)
	Warn(entityKind, refID, detail string)
}

// Stream emits one JSON line per mark, for the CLI and for tests.
type Stream struct {
	W   io.Writer
	Now func() time.Time

	mu       sync.Mutex
	sections []string
	marks    []Mark
}

func NewStream(w io.Writer) *Stream {
	return &Stream{W: w, Now: time.Now}
}

func (s *Stream) Section(label string) func() {
	s.mu.Lock()
	s.sections = append(s.sections, label)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if len(s.sections) > 0 {
			s.sections = s.sections[:len(s.sections)-1]
		}
		s.mu.Unlock()
	}
}

func (s *Stream) emit(kind, refID, name string, action Action, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	m := Mark{
		Section:    append([]string(nil), s.sections...),
		EntityKind: kind,
		RefID:      refID,
		Name:       name,
		Action:     action,
		Detail:     detail,
		TS:         now().UTC().Format(time.RFC3339),
	}
	s.marks = append(s.marks, m)
	if s.W != nil {
		data, err := json.Marshal(m)
		if err == nil {
			s.W.Write(append(data, '\n'))
		}
	}
}

func (s *Stream) MarkCreated(kind, refID, name string) { s.emit(kind, refID, name, ActionCreated, "") }
func (s *Stream) MarkUpdated(kind, refID, name string) { s.emit(kind, refID, name, ActionUpdated, "") }
func (s *Stream) MarkRemoved(kind, refID, name string) { s.emit(kind, refID, name, ActionRemoved, "") }
func (s *Stream) MarkSkipped(kind, refID, name, detail string) {
	s.emit(kind, refID, name, ActionSkipped, detail)
}
func (s *Stream) Warn(kind, refID, detail string) { s.emit(kind, refID, "", ActionWarning, detail) }

// Marks returns a copy of everything emitted so far.
func (s *Stream) Marks() []Mark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mark(nil), s.marks...)
}

// Noop discards everything; used by cron and guest flows.
type Noop struct{}

func (Noop) Section(string) func()              { return func() {} }
func (Noop) MarkCreated(string, string, string) {}
func (Noop) MarkUpdated(string, string, string) {}
func (Noop) MarkRemoved(string, string, string) {}
func (Noop) MarkSkipped(_, _, _, _ string)      {}
func (Noop) Warn(string, string, string)        {}
