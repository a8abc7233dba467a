// Command orbitald is the CORE daemon: it wires the Axiom Gateway to a
// HAL backend, a dispatcher poll loop, durable commit storage, the audit
// bus, telemetry, attestation, and the admin API, then blocks until
// SIGTERM. Adapted from the teacher's cmd/socket-gateway numbered-
// initialization-with-graceful-degradation style — optional integrations
// log a warning and run without them rather than failing startup.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"

	"github.com/orbital/kernel/internal/adminapi"
	"github.com/orbital/kernel/internal/attestation"
	"github.com/orbital/kernel/internal/auditbus"
	"github.com/orbital/kernel/internal/config"
	"github.com/orbital/kernel/internal/dispatcher"
	"github.com/orbital/kernel/internal/gateway"
	"github.com/orbital/kernel/internal/hal"
	"github.com/orbital/kernel/internal/haldocker"
	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/storage"
	"github.com/orbital/kernel/internal/synctap"
	"github.com/orbital/kernel/internal/telemetry"
	"github.com/orbital/kernel/internal/verifyjob"
)

// realClock backs gateway.Clock in production, unlike the fixed/stepped
// clocks the gateway's own tests use.
type realClock struct{}

func (realClock) Now() uint64 { return uint64(time.Now().UnixNano()) }

func main() {
	configPath := flag.String("config", "", "path to orbitald YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 1. Durable commit storage — selected by backend, defaulting to
	// process-lifetime-only memory.
	var store storage.CommitStore
	switch cfg.Storage.Backend {
	case "postgres":
		pg, err := storage.NewPostgres(cfg.Storage.Postgres.DSN)
		if err != nil {
			slog.Error("postgres storage unavailable, falling back to memory", "error", err)
			store = storage.NewMemory()
		} else {
			store = pg
		}
	case "spanner":
		sp, err := storage.NewSpanner(cfg.Storage.Spanner.ProjectID, cfg.Storage.Spanner.InstanceID, cfg.Storage.Spanner.DatabaseID)
		if err != nil {
			slog.Error("spanner storage unavailable, falling back to memory", "error", err)
			store = storage.NewMemory()
		} else {
			store = sp
		}
	default:
		store = storage.NewMemory()
	}

	// 2. Gateway — restored from durable history if any exists, otherwise
	// a fresh genesis.
	gw, err := bootGateway(store, cfg)
	if err != nil {
		slog.Error("gateway boot failed", "error", err)
		os.Exit(1)
	}
	gw.SetCommitStore(store)
	if sink, ok := store.(interface {
		Evicted(kerntypes.SysEvent)
	}); ok {
		gw.SetOverflowSink(sink)
	}

	// 3. Attestation — noop unless spiffe is configured.
	if cfg.Attestation.Backend == "spiffe" {
		attestor, err := attestation.NewSpiffe(cfg.Attestation.SpireSocket, cfg.Attestation.TrustDomain, cfg.Attestation.AllowedImages)
		if err != nil {
			slog.Warn("spiffe attestor unavailable, falling back to noop", "error", err)
		} else {
			gw.SetAttestor(attestor)
		}
	}

	// 4. Telemetry — always on, cheap, and local-only.
	metrics := telemetry.New()
	gw.SetTelemetry(metrics)

	// 5. Audit bus — in-process by default, Pub/Sub when configured.
	var bus auditbus.Bus
	switch cfg.AuditBus.Backend {
	case "pubsub":
		ps, err := auditbus.NewPubSub(cfg.AuditBus.PubSub.ProjectID, cfg.AuditBus.PubSub.TopicID)
		if err != nil {
			slog.Warn("pubsub audit bus unavailable, falling back to in-process", "error", err)
			bus = auditbus.NewInProcess()
		} else {
			bus = ps
		}
	default:
		bus = auditbus.NewInProcess()
	}
	gw.SetAuditBus(bus)

	// 6. HAL backend — selects the sandbox execution model. The gateway
	// needs it too: spawn_process registers a process in KernelState and
	// then asks the HAL to start its sandbox (spec §4.2.5).
	h, closeHAL := bootHAL(cfg)
	if closeHAL != nil {
		defer closeHAL()
	}
	gw.SetHAL(h)

	// 7. Dispatcher — one poll goroutine per live process, reconciled
	// against the gateway's own process table since commit events carry
	// no pid.
	disp := dispatcher.New(h, gw, time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reconcileDispatcher(ctx, gw, disp, metrics, cfg.HAL.Backend)

	// 8. Syscall verify job — replays the CommitLog against the gateway's
	// own live state hash on an interval, either locally or via Cloud
	// Tasks.
	vjob := verifyjob.New(gw, cfg.VerifyJob)
	go vjob.Run(ctx)

	// 9. Optional kernel-side syscall tap.
	if cfg.SyncTap.Enabled {
		bootSyncTap(bus, cfg.SyncTap.PinnedPath)
	}

	// 10. Admin API — read-only introspection + the verify-job callback.
	admin := adminapi.New(gw, bus, metrics)
	mux := admin.Router()
	mux.HandleFunc("/internal/verify", vjob.Callback).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:         cfg.Server.AdminAddr,
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("orbitald started", "admin_addr", cfg.Server.AdminAddr, "hal_backend", cfg.HAL.Backend, "storage_backend", cfg.Storage.Backend, "env", cfg.Server.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("admin api server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("orbitald shut down")
}

// bootGateway loads any existing commit history out of store and
// restores the gateway from it; an empty store means this is a fresh
// deployment and New's own genesis commit is persisted immediately so a
// restart after a crash before the first real syscall still has a
// history to restore from.
func bootGateway(store storage.CommitStore, cfg *config.Config) (*gateway.Gateway, error) {
	rows, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		gw := gateway.New(realClock{}, cfg.Kernel.SysLogCapacity)
		if err := store.Append(storage.ToStored(gw.Commits()[0])); err != nil {
			slog.Warn("failed to persist genesis commit", "error", err)
		}
		return gw, nil
	}
	commits, err := storage.FromStored(rows)
	if err != nil {
		return nil, err
	}
	slog.Info("restoring gateway from durable history", "commits", len(commits))
	return gateway.Restore(realClock{}, cfg.Kernel.SysLogCapacity, commits)
}

// bootHAL selects the HAL backend by config, failing back to the
// in-process backend when a container-backed one can't be reached —
// orbitald should still run in degraded single-binary mode rather than
// refuse to start.
func bootHAL(cfg *config.Config) (hal.HAL, func()) {
	switch cfg.HAL.Backend {
	case "docker":
		backend, err := haldocker.New(haldocker.Config{
			Image:       cfg.HAL.Docker.Image,
			Runtime:     cfg.HAL.Docker.Runtime,
			MinIdle:     cfg.HAL.Docker.MinIdle,
			MaxCapacity: cfg.HAL.Docker.MaxCapacity,
			RedisAddr:   cfg.HAL.Docker.RedisAddr,
			RedisDB:     cfg.HAL.Docker.RedisDB,
		})
		if err != nil {
			slog.Warn("docker HAL backend unavailable, falling back to in-process", "error", err)
			return hal.NewMem(nil), nil
		}
		return backend, func() { backend.Close() }
	case "null":
		return hal.Null{}, nil
	default:
		return hal.NewMem(nil), nil
	}
}

// reconcileDispatcher polls the gateway's own process table, since a
// commit's audit-bus envelope carries no pid (§6.5's summary-only
// Data map) — Watch/Unwatch the dispatcher against whatever is
// currently Running, added or removed since the last tick.
func reconcileDispatcher(ctx context.Context, gw *gateway.Gateway, disp *dispatcher.Dispatcher, metrics *telemetry.Registry, halBackend string) {
	watched := make(map[kerntypes.ProcessId]struct{})
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			live := make(map[kerntypes.ProcessId]struct{})
			for _, p := range gw.ProcessList() {
				if p.State == kerntypes.Zombie {
					continue
				}
				live[p.Pid] = struct{}{}
				if _, ok := watched[p.Pid]; !ok {
					disp.Watch(ctx, p.Pid)
					watched[p.Pid] = struct{}{}
				}
			}
			for pid := range watched {
				if _, ok := live[pid]; !ok {
					disp.Unwatch(pid)
					delete(watched, pid)
				}
			}
			if metrics != nil {
				metrics.DispatcherBacklog.WithLabelValues(halBackend).Set(float64(len(watched)))
			}
		}
	}
}

// bootSyncTap attaches the optional eBPF syscall tap to a pinned ring
// buffer map if one is configured and loadable, and starts it in mock
// mode otherwise — it can never fail orbitald's startup.
func bootSyncTap(bus auditbus.Bus, pinnedMapPath string) {
	tap, err := synctap.New(bus)
	if err != nil {
		slog.Warn("synctap disabled", "error", err)
		return
	}
	if pinnedMapPath != "" {
		m, err := ebpf.LoadPinnedMap(pinnedMapPath, nil)
		if err != nil {
			slog.Warn("synctap pinned map unavailable, running in mock mode", "error", err)
		} else {
			r, err := ringbuf.NewReader(m)
			if err != nil {
				slog.Warn("synctap ring buffer reader unavailable, running in mock mode", "error", err)
			} else {
				tap.AttachPinned(r)
			}
		}
	}
	tap.Start()
}
