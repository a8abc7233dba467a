// Package auditbus fans out CORE activity — commits and SysLog events —
// as CloudEvents to whoever's listening (the admin API's websocket
// stream, an external SIEM). It is read-only and asynchronous: nothing
// here ever blocks or is consulted by a syscall (SPEC_FULL §6.5
// expansion), adapted from the teacher's internal/events bus.
package auditbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbital/kernel/internal/kerntypes"
)

// Event is the CloudEvents 1.0 envelope every bus backend emits.
type Event struct {
	SpecVersion string                 `json:"specversion"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ID          string                 `json:"id"`
	Time        time.Time              `json:"time"`
	Subject     string                 `json:"subject,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// EventType tags of the two activity kinds the gateway produces.
const (
	TypeCommit   = "orbital.commit.appended"
	TypeSysEvent = "orbital.syscall.logged"
)

func newEvent(eventType, subject string, data map[string]interface{}, now time.Time) *Event {
	return &Event{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      "/orbital/gateway",
		ID:          uuid.NewString(),
		Time:        now,
		Subject:     subject,
		Data:        data,
	}
}

func (e *Event) JSON() ([]byte, error) { return json.Marshal(e) }

// Bus is the interface the gateway-observing code publishes through;
// both InProcess and PubSub satisfy it.
type Bus interface {
	EmitCommit(c kerntypes.Commit)
	EmitSysEvent(e kerntypes.SysEvent)
	Subscribe() (ch <-chan *Event, cancel func())
}

// InProcess is an in-memory pub/sub bus — the default, used by the
// admin API's websocket stream and by tests.
type InProcess struct {
	mu     sync.RWMutex
	subs   map[chan *Event]struct{}
	logger *slog.Logger
}

func NewInProcess() *InProcess {
	return &InProcess{subs: make(map[chan *Event]struct{}), logger: slog.Default().With("component", "auditbus")}
}

func (b *InProcess) publish(e *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("subscriber channel full, dropping event", "type", e.Type)
		}
	}
}

func (b *InProcess) EmitCommit(c kerntypes.Commit) {
	b.publish(newEvent(TypeCommit, fmt.Sprintf("seq-%d", c.Seq), map[string]interface{}{
		"seq":  c.Seq,
		"id":   fmt.Sprintf("%x", c.Id),
		"tag":  c.CommitType.Tag(),
		"time": c.Timestamp,
	}, time.Unix(0, int64(c.Timestamp))))
}

func (b *InProcess) EmitSysEvent(e kerntypes.SysEvent) {
	b.publish(newEvent(TypeSysEvent, fmt.Sprintf("req-%d", e.Id), map[string]interface{}{
		"id":      e.Id,
		"sender":  e.Sender,
		"kind":    e.Kind,
		"syscall": e.SyscallNum,
	}, time.Unix(0, int64(e.Timestamp))))
}

// Subscribe returns a channel of future events and a cancel func to stop
// receiving them. The channel is buffered; a slow subscriber drops
// events rather than backpressuring the bus.
func (b *InProcess) Subscribe() (<-chan *Event, func()) {
	ch := make(chan *Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

var _ Bus = (*InProcess)(nil)
