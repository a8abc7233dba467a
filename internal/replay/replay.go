// Package replay reconstructs KernelState from a CommitLog prefix and
// computes the canonical state_hash used to verify that replay and live
// execution agree (spec §4.7). It deliberately duplicates a narrow slice
// of internal/kernel's own mutation logic rather than calling back into
// Step — Step takes a live syscall and sender, replay takes only the
// committed facts, and the two are intentionally kept separate so a bug
// in one is not masked by the other sharing code.
package replay

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/orbital/kernel/internal/axiomcheck"
	"github.com/orbital/kernel/internal/kernel"
	"github.com/orbital/kernel/internal/kerntypes"
)

// HashMismatch is returned by ReplayAndVerify when the replayed state's
// hash disagrees with the expected one.
type HashMismatch struct {
	Got, Want [32]byte
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("replay: state_hash mismatch: got %x want %x", e.Got, e.Want)
}

// ChainBroken is returned when the supplied commits fail hash-chain
// verification before replay is even attempted.
type ChainBroken struct{ Seq uint64 }

func (e *ChainBroken) Error() string {
	return fmt.Sprintf("replay: chain broken at seq %d", e.Seq)
}

// Replay reconstructs a KernelState by applying each commit's effect in
// order, via a dedicated handler per CommitType (§4.7). It assumes the
// caller has already verified the chain (commitlog.VerifyIntegrity);
// Replay itself only checks PrevCommit linkage as a cheap sanity pass.
func Replay(commits []kerntypes.Commit) (*kernel.KernelState, error) {
	state := kernel.New()
	state.NextPid = 0
	state.NextEndpoint = 0
	state.NextCapId = 0

	var prev [32]byte
	for i, c := range commits {
		if i > 0 && c.PrevCommit != prev {
			return nil, &ChainBroken{Seq: c.Seq}
		}
		prev = c.Id
		if err := apply(state, c.CommitType); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// ReplayAndVerify replays commits and compares the resulting state_hash
// to want. It returns the reconstructed state on success for callers
// that want to inspect it further (the admin API, verifyjob).
func ReplayAndVerify(commits []kerntypes.Commit, want [32]byte) (*kernel.KernelState, error) {
	state, err := Replay(commits)
	if err != nil {
		return nil, err
	}
	got := StateHash(state)
	if got != want {
		return state, &HashMismatch{Got: got, Want: want}
	}
	return state, nil
}

func apply(state *kernel.KernelState, ct kerntypes.CommitType) error {
	switch v := ct.(type) {
	case kerntypes.GenesisCommit:
		return nil

	case kerntypes.ProcessCreated:
		state.Processes[v.Pid] = &kernel.Process{Id: v.Pid, Parent: v.Parent, Name: v.Name, State: kerntypes.Running}
		state.CapSpaces[v.Pid] = axiomcheck.NewCapSpace()
		if v.Pid >= state.NextPid {
			state.NextPid = v.Pid + 1
		}
		return nil

	case kerntypes.ProcessExited:
		if p, ok := state.Processes[v.Pid]; ok {
			p.State = kerntypes.Zombie
		}
		return nil

	case kerntypes.ProcessFaulted:
		if p, ok := state.Processes[v.Pid]; ok {
			p.State = kerntypes.Zombie
		}
		return nil

	case kerntypes.CapInserted:
		cs, ok := state.CapSpaces[v.Pid]
		if !ok {
			return fmt.Errorf("replay: CapInserted for unknown pid %d", v.Pid)
		}
		cs.InsertAt(v.Slot, kerntypes.Capability{
			Id: v.CapId, ObjectType: v.ObjectType, ObjectId: v.ObjectId, Permissions: v.Perms,
		})
		if v.CapId >= state.NextCapId {
			state.NextCapId = v.CapId + 1
		}
		return nil

	case kerntypes.CapRemoved:
		if cs, ok := state.CapSpaces[v.Pid]; ok {
			cs.Remove(v.Slot)
		}
		return nil

	case kerntypes.CapGranted:
		// Informational only — the state change already happened via
		// the sibling CapInserted (§4.7).
		return nil

	case kerntypes.EndpointCreated:
		if _, ok := state.Processes[v.Owner]; !ok {
			return fmt.Errorf("replay: EndpointCreated owner %d does not exist", v.Owner)
		}
		state.Endpoints[v.Id] = &kernel.Endpoint{Id: v.Id, Owner: v.Owner}
		if v.Id >= state.NextEndpoint {
			state.NextEndpoint = v.Id + 1
		}
		return nil

	case kerntypes.EndpointDestroyed:
		delete(state.Endpoints, v.Id)
		return nil

	case kerntypes.MessageSent:
		// Messages are transient and deliberately not replayed.
		return nil

	default:
		return fmt.Errorf("replay: unhandled commit type %T", ct)
	}
}

// StateHash computes the canonical digest over (processes, cspaces,
// endpoints) in sorted order (§4.7). It depends only on the persistent,
// replay-reconstructible facts — never on transient per-endpoint queues
// or running metrics counters, so a live gateway's state_hash and a
// replayed one agree even if the live state has messages in flight.
func StateHash(state *kernel.KernelState) [32]byte {
	var buf bytes.Buffer

	pids := make([]kerntypes.ProcessId, 0, len(state.Processes))
	for pid := range state.Processes {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		p := state.Processes[pid]
		writeU64(&buf, uint64(p.Id))
		writeU64(&buf, uint64(p.Parent))
		writeString(&buf, p.Name)
		buf.WriteByte(byte(p.State))
	}

	for _, pid := range pids {
		cs := state.CapSpaces[pid]
		entries := cs.List()
		sort.Slice(entries, func(i, j int) bool { return entries[i].Slot < entries[j].Slot })
		writeU64(&buf, uint64(pid))
		for _, e := range entries {
			writeU32(&buf, uint32(e.Slot))
			writeU64(&buf, uint64(e.Cap.Id))
			buf.WriteByte(byte(e.Cap.ObjectType))
			writeU64(&buf, e.Cap.ObjectId)
			buf.WriteByte(byte(e.Cap.Permissions))
			writeU64(&buf, e.Cap.Generation)
			writeU64(&buf, e.Cap.ExpiresAt)
		}
	}

	eids := make([]kerntypes.EndpointId, 0, len(state.Endpoints))
	for id := range state.Endpoints {
		eids = append(eids, id)
	}
	sort.Slice(eids, func(i, j int) bool { return eids[i] < eids[j] })
	for _, id := range eids {
		ep := state.Endpoints[id]
		writeU64(&buf, uint64(ep.Id))
		writeU64(&buf, uint64(ep.Owner))
	}

	return sha256.Sum256(buf.Bytes())
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}
