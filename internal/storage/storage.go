// Package storage durably persists the CommitLog so it survives an
// orbitald restart, independent of in-process replay (SPEC_FULL §4.6/4.7
// expansion). The kernel never reads from a CommitStore during a
// syscall — it only appends after the fact — so a slow or unavailable
// store degrades durability, never correctness of the hot path.
package storage

import (
	"sync"

	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/syslog"
)

// StoredCommit is the durable row shape every backend persists. Body is
// CommitType.EncodeBody(); Tag identifies which CommitType it decodes as.
type StoredCommit struct {
	Seq        uint64
	Id         [32]byte
	PrevCommit [32]byte
	Timestamp  uint64
	RequestId  *uint64
	Tag        byte
	Body       []byte
}

// CommitStore persists commits as they are appended and lets a restarted
// orbitald load its history back.
type CommitStore interface {
	Append(c StoredCommit) error
	LoadAll() ([]StoredCommit, error)
}

// ToStored converts a kerntypes.Commit to its durable row form.
func ToStored(c kerntypes.Commit) StoredCommit {
	return StoredCommit{
		Seq:        c.Seq,
		Id:         c.Id,
		PrevCommit: c.PrevCommit,
		Timestamp:  c.Timestamp,
		RequestId:  c.RequestId,
		Tag:        c.CommitType.Tag(),
		Body:       c.CommitType.EncodeBody(),
	}
}

// FromStored is ToStored's inverse, used on orbitald's boot path to turn
// a CommitStore.LoadAll result back into the []kerntypes.Commit
// gateway.Restore and replay.Replay expect.
func FromStored(rows []StoredCommit) ([]kerntypes.Commit, error) {
	out := make([]kerntypes.Commit, 0, len(rows))
	for _, r := range rows {
		ct, err := kerntypes.DecodeCommitType(r.Tag, r.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, kerntypes.Commit{
			Seq:        r.Seq,
			Id:         r.Id,
			PrevCommit: r.PrevCommit,
			Timestamp:  r.Timestamp,
			RequestId:  r.RequestId,
			CommitType: ct,
		})
	}
	return out, nil
}

// Memory is the default CommitStore: durability only for the lifetime of
// the process, used by tests and single-binary dry runs.
type Memory struct {
	mu        sync.Mutex
	rows      []StoredCommit
	evictions []kerntypes.SysEvent
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(c StoredCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, c)
	return nil
}

func (m *Memory) LoadAll() ([]StoredCommit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredCommit, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

// Evicted records a dropped SysLog event, satisfying syslog.OverflowSink.
// Used by tests and single-binary dry runs that want eviction wired end to
// end without a real database.
func (m *Memory) Evicted(e kerntypes.SysEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions = append(m.evictions, e)
}

// Evictions returns the events recorded by Evicted, for test assertions.
func (m *Memory) Evictions() []kerntypes.SysEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]kerntypes.SysEvent, len(m.evictions))
	copy(out, m.evictions)
	return out
}

var _ CommitStore = (*Memory)(nil)
var _ syslog.OverflowSink = (*Memory)(nil)
