// Package events publishes run lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Type names one lifecycle transition.
type Type string

const (
	RunStarted      Type = "run.started"
	StageStarted    Type = "stage.started"
	StageCompleted  Type = "stage.completed"
	StageFailed     Type = "stage.failed"
	StageSkipped    Type = "stage.skipped"
	QualityRejected Type = "quality.rejected"
	RunCompleted    Type = "run.completed"
	RunFailed       Type = "run.failed"
	RunCancelled    Type = "run.cancelled"
)

// Event is published after the transition it describes has been persisted.
type Event struct {
	Type     Type           `json:"type"`
	RunID    string         `json:"run_id"`
	Stage    string         `json:"stage,omitempty"`
	Revision uint64         `json:"revision"`
	At       time.Time      `json:"at"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// Publisher delivers events. Publish failures never undo a transition.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes JSON to {prefix}.{runID}.{type}.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher wraps nc. An empty prefix defaults to "sitegen.runs".
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "sitegen.runs"
	}
	return &NATSPublisher{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject e is published on.
func (p *NATSPublisher) Subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, e.RunID, e.Type)
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(e), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order, optionally for one run.
func (r *Recorder) Types(runID string) []Type {
	var out []Type
	for _, e := range r.Events() {
		if runID == "" || e.RunID == runID {
			out = append(out, e.Type)
		}
	}
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
