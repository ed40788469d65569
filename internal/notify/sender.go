package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	KindListingTransition = "listing.transition"
	KindReportHandled     = "report.handled"
)

// Event describes a committed change. It is published after the transaction
// commits and never influences the outcome of the change.
type Event struct {
	Kind      string    `json:"kind"`
	ListingID string    `json:"listing_id,omitempty"`
	ReportID  string    `json:"report_id,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type Sender interface {
	Send(ctx context.Context, e Event) error
}

type SenderFunc func(ctx context.Context, e Event) error

func (f SenderFunc) Send(ctx context.Context, e Event) error { return f(ctx, e) }

type LogSender struct {
	Log logrus.FieldLogger
}

func (s LogSender) Send(_ context.Context, e Event) error {
	s.Log.WithFields(logrus.Fields{
		"kind":       e.Kind,
		"listing_id": e.ListingID,
		"report_id":  e.ReportID,
		"owner_id":   e.OwnerID,
		"actor_id":   e.ActorID,
		"from":       e.From,
		"to":         e.To,
	}).Info("moderation event")
	return nil
}

// Dispatcher hands events to a Sender on its own goroutine. Publish never
// blocks: when the buffer is full the event is dropped and logged.
type Dispatcher struct {
	sender Sender
	log    logrus.FieldLogger
	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, buffer int, log logrus.FieldLogger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		sender: sender,
		log:    log,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.sender.Send(ctx, e); err != nil {
			d.log.WithError(err).WithField("kind", e.Kind).Warn("event delivery failed")
		}
		cancel()
	}
}

// Publish queues e and reports whether it was accepted.
func (d *Dispatcher) Publish(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.events <- e:
		return true
	default:
		d.log.WithFields(logrus.Fields{"kind": e.Kind, "listing_id": e.ListingID}).Warn("event buffer full, dropping event")
		return false
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
