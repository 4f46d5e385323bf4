package engine

import (
	"fmt"

	"github.com/kingrea/disputeflow/internal/workflow/graph"
)

// Event classifies a log entry.
type Event string

const (
	EventEntry        Event = "entry"
	EventActionStop   Event = "action-stop"
	EventActionResume Event = "action-resume"
	EventEnd          Event = "end"
	EventCycle        Event = "cycle"
	EventRoute        Event = "route"
	EventUnrouted     Event = "unrouted"
	EventNoEdge       Event = "no-edge"
	EventMissing      Event = "missing-target"
	EventAdvance      Event = "advance"
	EventAutoContinue Event = "auto-continue"
)

// NodeRef identifies the node an entry refers to.
type NodeRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Entry is one step of an execution log.
type Entry struct {
	Step    int     `json:"step"`
	Event   Event   `json:"event"`
	Message string  `json:"message"`
	Node    NodeRef `json:"node"`
}

// Log is the ordered record of a run. Steps start at 1.
type Log []Entry

// Last returns the final entry.
func (l Log) Last() (Entry, bool) {
	if len(l) == 0 {
		return Entry{}, false
	}
	return l[len(l)-1], true
}

// Messages returns the entry messages in order.
func (l Log) Messages() []string {
	out := make([]string, len(l))
	for i, entry := range l {
		out[i] = entry.Message
	}
	return out
}

// Events returns the entry events in order.
func (l Log) Events() []Event {
	out := make([]Event, len(l))
	for i, entry := range l {
		out[i] = entry.Event
	}
	return out
}

// Clone returns a copy that shares nothing with l.
func (l Log) Clone() Log {
	if l == nil {
		return nil
	}
	out := make(Log, len(l))
	copy(out, l)
	return out
}

type recorder struct {
	entries Log
}

func (r *recorder) add(event Event, node graph.Node, format string, args ...any) {
	r.entries = append(r.entries, Entry{
		Step:    len(r.entries) + 1,
		Event:   event,
		Message: fmt.Sprintf(format, args...),
		Node:    NodeRef{ID: node.ID, Label: node.Label},
	})
}

func (r *recorder) snapshot() Log {
	return r.entries.Clone()
}
