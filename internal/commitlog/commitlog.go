// Package commitlog implements the hash-chained, append-only audit trail
// of state mutations (spec §4.4). It is pure bookkeeping: it never
// interprets a CommitType, only hashes and chains it.
package commitlog

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/orbital/kernel/internal/kerntypes"
)

// CommitLog is an append-only sequence of commits anchored by a Genesis
// at seq 0. Persistence to stable storage is the outer process's job
// (internal/storage); CommitLog itself is an in-memory structure whose
// only promise is that replaying the same prefix yields the same state.
type CommitLog struct {
	commits []kerntypes.Commit
}

// New creates a CommitLog and immediately appends Genesis at the given
// timestamp, matching spec §8 scenario 1.
func New(timestamp uint64) *CommitLog {
	cl := &CommitLog{}
	cl.appendRaw(kerntypes.GenesisCommit{}, nil, timestamp)
	return cl
}

// id computes H(seq ‖ prev_commit ‖ timestamp ‖ serialize(commit_type))
// per §6.2, using SHA-256 over the canonical byte layout.
func id(seq uint64, prev [32]byte, timestamp uint64, ct kerntypes.CommitType) [32]byte {
	var buf bytes.Buffer
	var seqB [8]byte
	for i := 0; i < 8; i++ {
		seqB[i] = byte(seq >> (8 * i))
	}
	buf.Write(seqB[:])
	buf.Write(prev[:])
	var tsB [8]byte
	for i := 0; i < 8; i++ {
		tsB[i] = byte(timestamp >> (8 * i))
	}
	buf.Write(tsB[:])
	buf.WriteByte(ct.Tag())
	buf.Write(ct.EncodeBody())
	return sha256.Sum256(buf.Bytes())
}

func (cl *CommitLog) appendRaw(ct kerntypes.CommitType, requestId *uint64, timestamp uint64) kerntypes.Commit {
	seq := uint64(len(cl.commits))
	var prev [32]byte
	if seq > 0 {
		prev = cl.commits[seq-1].Id
	}
	c := kerntypes.Commit{
		Seq:        seq,
		PrevCommit: prev,
		Timestamp:  timestamp,
		RequestId:  requestId,
		CommitType: ct,
	}
	c.Id = id(seq, prev, timestamp, ct)
	cl.commits = append(cl.commits, c)
	return c
}

// Restore rebuilds a CommitLog from a previously persisted sequence
// (internal/storage's CommitStore.Load), verifying the chain before
// trusting it — a corrupt or truncated store must fail orbitald's boot
// loudly rather than silently resume from a broken prefix.
func Restore(commits []kerntypes.Commit) (*CommitLog, error) {
	if len(commits) == 0 {
		return nil, fmt.Errorf("commitlog: restore requires at least a genesis commit")
	}
	cl := &CommitLog{commits: commits}
	if !cl.VerifyIntegrity() {
		return nil, fmt.Errorf("commitlog: restored sequence fails integrity check")
	}
	return cl, nil
}

// Append assigns the next seq, computes the hash, and appends. requestId
// is nil only for internal commits (timer-driven reclamation etc.) — the
// gateway is the only caller permitted to pass a non-nil one, since every
// syscall-caused commit must be attributable to the request that caused
// it (§4.6).
func (cl *CommitLog) Append(ct kerntypes.CommitType, requestId *uint64, timestamp uint64) kerntypes.Commit {
	return cl.appendRaw(ct, requestId, timestamp)
}

// VerifyIntegrity recomputes every commit's hash and checks the chain
// link to its predecessor, including Genesis against its own recomputed
// hash (§4.4, §8 "Hash chain closure").
func (cl *CommitLog) VerifyIntegrity() bool {
	for i, c := range cl.commits {
		var prev [32]byte
		if i > 0 {
			prev = cl.commits[i-1].Id
		}
		if c.PrevCommit != prev {
			return false
		}
		want := id(c.Seq, prev, c.Timestamp, c.CommitType)
		if want != c.Id {
			return false
		}
	}
	return true
}

func (cl *CommitLog) Head() kerntypes.Commit {
	return cl.commits[len(cl.commits)-1]
}

func (cl *CommitLog) CurrentSeq() uint64 {
	return uint64(len(cl.commits))
}

// Commits returns the full committed sequence. Callers must not mutate
// the returned slice's Commit values.
func (cl *CommitLog) Commits() []kerntypes.Commit {
	return cl.commits
}

// HexId renders a commit id as a hex string, for logging and storage keys.
func HexId(id [32]byte) string {
	return fmt.Sprintf("%x", id)
}
