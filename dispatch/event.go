package dispatch

import (
	"encoding/json"
	"sync"
)

// EventType tags a progress stream event.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one line of the progress stream. Which fields are meaningful
// depends on Type; MarshalJSON writes only those.
type Event struct {
	Type      EventType
	RunID     string
	Stage     string
	Completed int
	Total     int
	Percent   int
	Message   string
	Status    Status
	Failed    []Failure
	Error     string
}

type startJSON struct {
	Type  EventType `json:"type"`
	RunID string    `json:"runId,omitempty"`
	Total int       `json:"total"`
}

type progressJSON struct {
	Type      EventType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Percent   int       `json:"percent"`
}

type completeJSON struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Failed    []Failure `json:"failed,omitempty"`
}

type errorJSON struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"runId,omitempty"`
	Error     string    `json:"error"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
}

// MarshalJSON renders the wire shape of e.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStart:
		return json.Marshal(startJSON{Type: e.Type, RunID: e.RunID, Total: e.Total})
	case EventProgress:
		return json.Marshal(progressJSON{Type: e.Type, Stage: e.Stage, Completed: e.Completed, Total: e.Total, Percent: e.Percent})
	case EventComplete:
		return json.Marshal(completeJSON{Type: e.Type, Message: e.Message, Status: e.Status, Completed: e.Completed, Total: e.Total, Failed: e.Failed})
	case EventError:
		return json.Marshal(errorJSON{Type: e.Type, RunID: e.RunID, Error: e.Error, Completed: e.Completed, Total: e.Total})
	}
	type plain Event
	return json.Marshal(plain(e))
}

func errorEvent(runID string, err error, completed, total int) Event {
	return Event{Type: EventError, RunID: runID, Error: err.Error(), Completed: completed, Total: total}
}

func orDiscard(emit func(Event)) func(Event) {
	if emit == nil {
		return func(Event) {}
	}
	return emit
}

// Collector gathers events, for callers that want the whole stream.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (c *Collector) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of everything emitted so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Progress returns only the progress events.
func (c *Collector) Progress() []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Type == EventProgress {
			out = append(out, e)
		}
	}
	return out
}
