package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drummonds/pdfview/viewer"
)

// EventType names a viewer notification.
type EventType string

const (
	EventLoaded            EventType = "loaded"
	EventLoadingFailed     EventType = "loadingFailed"
	EventRendered          EventType = "rendered"
	EventRenderingFailed   EventType = "renderingFailed"
	EventPrintingFailed    EventType = "printingFailed"
	EventPasswordRequested EventType = "passwordRequested"
	EventJumpRequested     EventType = "jumpRequested"
)

// maxEvents bounds the log kept per session; pollers that fall further
// behind see a gap in sequence numbers.
const maxEvents = 256

// Event is one notification as the front end polls it.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
	PageCount int       `json:"pageCount,omitempty"`
	Page      int       `json:"page,omitempty"`
	Retry     bool      `json:"retry,omitempty"`

	err error
}

// eventLog records the notifications of one viewer and holds the pending
// password prompt until the front end answers it.
type eventLog struct {
	mu      sync.Mutex
	seq     uint64
	events  []Event
	changed chan struct{}
	prompt  *viewer.PasswordPrompt
}

func newEventLog() *eventLog {
	return &eventLog{changed: make(chan struct{})}
}

func (l *eventLog) append(e Event) {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	e.At = time.Now()
	if e.err != nil {
		e.Error = e.err.Error()
	}
	l.events = append(l.events, e)
	if len(l.events) > maxEvents {
		l.events = append([]Event(nil), l.events[len(l.events)-maxEvents:]...)
	}
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
}

// last returns the sequence number of the newest event.
func (l *eventLog) last() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// since returns events newer than after and a channel closed on the next
// append.
func (l *eventLog) since(after uint64) ([]Event, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out, l.changed
}

// wait blocks until there are events newer than after, the timeout passes
// or ctx is done.
func (l *eventLog) wait(ctx context.Context, after uint64, timeout time.Duration) []Event {
	events, changed := l.since(after)
	if len(events) > 0 || timeout <= 0 {
		return events
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-changed:
		events, _ = l.since(after)
	case <-timer.C:
	case <-ctx.Done():
	}
	return events
}

// find returns the first event after seq with one of the given types.
func (l *eventLog) find(after uint64, types ...EventType) (Event, bool) {
	events, _ := l.since(after)
	for _, e := range events {
		for _, t := range types {
			if e.Type == t {
				return e, true
			}
		}
	}
	return Event{}, false
}

func (l *eventLog) pendingPassword() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prompt != nil
}

var errNoPrompt = errors.New("no password requested")

// answer submits or cancels the pending prompt.
func (l *eventLog) answer(password string, cancel bool) error {
	l.mu.Lock()
	prompt := l.prompt
	l.prompt = nil
	l.mu.Unlock()
	if prompt == nil {
		return errNoPrompt
	}
	if cancel {
		prompt.Cancel()
	} else {
		prompt.Submit(password)
	}
	return nil
}

// drop cancels a pending prompt so a blocked load can finish.
func (l *eventLog) drop() {
	_ = l.answer("", true)
}

func (l *eventLog) Loaded(doc viewer.Document) {
	l.append(Event{Type: EventLoaded, PageCount: doc.PageCount()})
}

func (l *eventLog) LoadingFailed(err error) {
	l.mu.Lock()
	l.prompt = nil
	l.mu.Unlock()
	l.append(Event{Type: EventLoadingFailed, err: err})
}

func (l *eventLog) Rendered() {
	l.append(Event{Type: EventRendered})
}

func (l *eventLog) RenderingFailed(err error) {
	l.append(Event{Type: EventRenderingFailed, err: err})
}

func (l *eventLog) PrintingFailed(err error) {
	l.append(Event{Type: EventPrintingFailed, err: err})
}

func (l *eventLog) PasswordRequested(prompt *viewer.PasswordPrompt, retry bool) {
	l.mu.Lock()
	if l.prompt != nil {
		l.prompt.Cancel()
	}
	l.prompt = prompt
	l.mu.Unlock()
	l.append(Event{Type: EventPasswordRequested, Retry: retry})
}

func (l *eventLog) JumpRequested(page int) {
	l.append(Event{Type: EventJumpRequested, Page: page})
}
