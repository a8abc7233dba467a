// Package gateway implements the Axiom Gateway (spec §4.6): the sole
// entry point through which a syscall reaches Step, with SysLog and
// CommitLog bracketing every call so every state mutation is
// attributable to the request that caused it.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orbital/kernel/internal/attestation"
	"github.com/orbital/kernel/internal/auditbus"
	"github.com/orbital/kernel/internal/commitlog"
	"github.com/orbital/kernel/internal/hal"
	"github.com/orbital/kernel/internal/kernel"
	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/replay"
	"github.com/orbital/kernel/internal/storage"
	"github.com/orbital/kernel/internal/syslog"
	"github.com/orbital/kernel/internal/telemetry"
)

// Clock supplies the gateway's logical "now" for every syscall in a
// batch, kept as an injected interface rather than time.Now() so replay
// and tests can hold it fixed (SPEC_FULL ambient-stack expansion).
type Clock interface {
	Now() uint64
}

// Gateway owns KernelState, CommitLog, and SysLog — the only three
// pieces of mutable state in the CORE (spec §9 "From global mutable
// state to owned state passing"). There is exactly one writer: callers
// serialize through Syscall via mu.
type Gateway struct {
	mu    sync.Mutex
	state *kernel.KernelState
	log   *commitlog.CommitLog
	sys   *syslog.SysLog
	clock Clock

	attestor attestation.Attestor
	bus      auditbus.Bus
	metrics  *telemetry.Registry
	store    storage.CommitStore
	hal      hal.HAL
	logger   *slog.Logger
}

// New constructs a Gateway with Genesis already appended at the clock's
// current reading. The attestor defaults to attestation.Noop — callers
// that need binary provenance checking on spawn_process wire a real one
// with SetAttestor.
func New(clock Clock, sysLogCapacity int) *Gateway {
	now := clock.Now()
	return &Gateway{
		state:    kernel.New(),
		log:      commitlog.New(now),
		sys:      syslog.New(sysLogCapacity),
		clock:    clock,
		attestor: attestation.Noop{},
		logger:   slog.Default().With("component", "gateway"),
	}
}

// Restore rebuilds a Gateway from a commit sequence loaded out of a
// storage.CommitStore (SPEC_FULL §4.4 expansion): the CommitLog resumes
// exactly where it left off and KernelState is rebuilt by
// replay.Replay rather than re-derived some other way, so a restarted
// orbitald's live state and its own replay verifier start from the
// identical reconstruction path.
func Restore(clock Clock, sysLogCapacity int, commits []kerntypes.Commit) (*Gateway, error) {
	log, err := commitlog.Restore(commits)
	if err != nil {
		return nil, err
	}
	state, err := replay.Replay(commits)
	if err != nil {
		return nil, fmt.Errorf("gateway: restore: %w", err)
	}
	return &Gateway{
		state:    state,
		log:      log,
		sys:      syslog.New(sysLogCapacity),
		clock:    clock,
		attestor: attestation.Noop{},
		logger:   slog.Default().With("component", "gateway"),
	}, nil
}

// SetCommitStore wires durable persistence: every commit Syscall or
// AppendInternal appends is also written to store. A write failure is
// logged, never returned — storage.CommitStore's own package doc is
// explicit that an unavailable store degrades durability, not
// correctness of the hot path.
func (g *Gateway) SetCommitStore(store storage.CommitStore) {
	g.store = store
}

func (g *Gateway) persist(c kerntypes.Commit) {
	if g.store == nil {
		return
	}
	if err := g.store.Append(storage.ToStored(c)); err != nil {
		g.logger.Error("commit store append failed", "seq", c.Seq, "error", err)
	}
}

// SetOverflowSink wires a durable sink for SysLog ring-buffer eviction
// (SPEC_FULL §4.5 expansion).
func (g *Gateway) SetOverflowSink(sink syslog.OverflowSink) {
	g.sys.SetOverflowSink(sink)
}

// SetAttestor wires binary provenance checking for spawn_process
// (SPEC_FULL §4.2.5 expansion).
func (g *Gateway) SetAttestor(a attestation.Attestor) {
	g.attestor = a
}

// SetAuditBus wires a CloudEvents fan-out for every appended commit and
// logged syscall, consumed asynchronously by the admin API's websocket
// stream and any external sink (SPEC_FULL §6.5 expansion). Optional —
// nil means no fan-out.
func (g *Gateway) SetAuditBus(bus auditbus.Bus) {
	g.bus = bus
}

// SetTelemetry wires a Prometheus metrics registry, incremented on every
// syscall for the admin API's /v1/metrics endpoint (SPEC_FULL §6.5
// expansion). Optional — nil means no instrumentation overhead.
func (g *Gateway) SetTelemetry(m *telemetry.Registry) {
	g.metrics = m
}

// SetHAL wires the platform boundary spawn_process needs to actually
// start a sandbox: Step only registers the new pid in KernelState, it
// never touches the HAL (spec §4.2.5, SPEC_FULL §4.2 expansion — Step
// stays pure). Without a HAL, SysSpawnProcess still registers the
// process but its sandbox never starts, matching the zero-value Gateway
// used by kernel-only unit tests that never drive a real process.
func (g *Gateway) SetHAL(h hal.HAL) {
	g.hal = h
}

// CommitIds is the list of commit ids a single Syscall call produced, in
// append order — the second half of §4.6's (i64, Vec<CommitId>) return.
type CommitIds [][32]byte

// Syscall is gateway.syscall from §4.6: log the request, invoke Step,
// append every resulting commit attributed to this request, log the
// response, and hand back the syscall's own Result alongside the commit
// ids it produced.
func (g *Gateway) Syscall(sender kerntypes.ProcessId, call kerntypes.Syscall) (kerntypes.Result, CommitIds) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.SyscallDuration.WithLabelValues(fmt.Sprintf("%#x", call.Num)).Observe(time.Since(start).Seconds())
		}
	}()

	now := g.clock.Now()
	requestId := g.sys.LogRequest(sender, call.Num, call.Args, now)
	if g.bus != nil {
		g.bus.EmitSysEvent(kerntypes.SysEvent{Id: requestId, Sender: sender, Kind: kerntypes.SysRequest, SyscallNum: call.Num, Args: call.Args, Timestamp: now})
	}

	// spawn_process's binary attestation happens here, before Step, not
	// inside it: a rejected image is a HAL-boundary fact, not a
	// commit-worthy kernel one (SPEC_FULL §4.2.5 expansion). Data carries
	// [name_len u32][name][binary]; Step only ever sees the name — the
	// binary is staged to the HAL directly, never retained in KernelState
	// or a commit.
	var spawnName string
	var spawnBinary []byte
	if call.Num == kerntypes.SysSpawnProcess {
		name, binary, err := kerntypes.DecodeSpawnProcessData(call.Data)
		if err != nil {
			return g.rejectSpawn(sender, call, requestId, now)
		}
		if err := g.attestor.Attest(context.Background(), binary); err != nil {
			return g.rejectSpawn(sender, call, requestId, now)
		}
		spawnName, spawnBinary = name, binary
		call.Data = []byte(spawnName)
	}

	commitTypes, result := g.state.Step(sender, call, now)

	// spawn_process registers the process in KernelState then asks the
	// HAL to start its sandbox with the allocated pid (spec §4.2.5). A
	// HAL failure here does not roll back the registration — the commits
	// already produced stand, matching the original's "Process was
	// registered but spawn failed" behavior — it only turns the syscall's
	// own result into an error so the caller knows the sandbox never
	// started.
	if call.Num == kerntypes.SysSpawnProcess && !result.IsErr() && g.hal != nil {
		pid := kerntypes.ProcessId(result.OkValue)
		if err := g.hal.SpawnProcessWithPID(pid, spawnName, spawnBinary); err != nil {
			g.logger.Error("hal spawn failed after registration", "pid", pid, "error", err)
			result = kerntypes.Err(kerntypes.ErrSpawnFailed)
			if g.metrics != nil {
				g.metrics.SpawnRejected.Inc()
			}
		}
	}

	ids := make(CommitIds, 0, len(commitTypes))
	rid := requestId
	for _, ct := range commitTypes {
		c := g.log.Append(ct, &rid, now)
		ids = append(ids, c.Id)
		g.persist(c)
		if g.bus != nil {
			g.bus.EmitCommit(c)
		}
		if g.metrics != nil {
			g.metrics.CommitsAppended.Inc()
			g.metrics.CommitLogLength.Set(float64(c.Seq + 1))
		}
	}

	g.sys.LogResponse(sender, requestId, result.AbiValue(), now)
	if g.bus != nil {
		g.bus.EmitSysEvent(kerntypes.SysEvent{Id: requestId, Sender: sender, Kind: kerntypes.SysResponse, RequestId: requestId, Result: result.AbiValue(), Timestamp: now})
	}
	if g.metrics != nil {
		outcome := "ok"
		if result.IsErr() {
			outcome = "error"
		}
		g.metrics.SyscallsTotal.WithLabelValues(fmt.Sprintf("%#x", call.Num), outcome).Inc()
	}
	return result, ids
}

// rejectSpawn short-circuits a spawn_process call that never reaches
// Step: a malformed payload or an attestation rejection is a HAL-boundary
// fact, not a commit-worthy kernel one (SPEC_FULL §4.2.5 expansion).
func (g *Gateway) rejectSpawn(sender kerntypes.ProcessId, call kerntypes.Syscall, requestId uint64, now uint64) (kerntypes.Result, CommitIds) {
	result := kerntypes.Err(kerntypes.ErrSpawnFailed)
	g.sys.LogResponse(sender, requestId, result.AbiValue(), now)
	if g.bus != nil {
		g.bus.EmitSysEvent(kerntypes.SysEvent{Id: requestId, Sender: sender, Kind: kerntypes.SysResponse, RequestId: requestId, Result: result.AbiValue(), Timestamp: now})
	}
	if g.metrics != nil {
		g.metrics.SpawnRejected.Inc()
		g.metrics.SyscallsTotal.WithLabelValues(fmt.Sprintf("%#x", call.Num), "attestation_rejected").Inc()
	}
	return result, nil
}

// AppendInternal records a commit not attributed to any syscall request
// (timer-driven reclamation, etc.) — the one path that bypasses SysLog,
// restricted to the core itself (§4.6).
func (g *Gateway) AppendInternal(ct kerntypes.CommitType) [32]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	c := g.log.Append(ct, nil, now)
	g.persist(c)
	return c.Id
}

// Commits returns the full CommitLog sequence, used by replay and the
// admin API.
func (g *Gateway) Commits() []kerntypes.Commit {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.log.Commits()
}

// SysLogSince returns SysLog events at or after sinceId, for the admin
// API's tailing endpoint.
func (g *Gateway) SysLogSince(sinceId uint64) []kerntypes.SysEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sys.Since(sinceId)
}

// VerifyIntegrity checks the CommitLog's hash chain.
func (g *Gateway) VerifyIntegrity() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.log.VerifyIntegrity()
}

// StateHash computes replay.StateHash over the gateway's own live state,
// giving internal/verifyjob a "want" value to replay the CommitLog
// against without the gateway itself depending on replay's goroutine or
// scheduling concerns — it only exposes the one pure function call needs.
func (g *Gateway) StateHash() [32]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return replay.StateHash(g.state)
}

// ProcessList is a read-only introspection helper for the admin API,
// bypassing Step since it performs no mutation and needs no commit.
func (g *Gateway) ProcessList() []kerntypes.ProcessInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.ProcessList()
}

// CapInfo is the same kind of read-only introspection helper as
// ProcessList, backing the admin API's GET /v1/cap/{pid}/{slot}.
func (g *Gateway) CapInfo(pid kerntypes.ProcessId, slot kerntypes.CapSlot) (kerntypes.CapInfoData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.CapInfo(pid, slot)
}
