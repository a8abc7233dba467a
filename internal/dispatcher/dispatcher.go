// Package dispatcher bridges the HAL boundary (internal/hal, §6.4) and
// the Axiom Gateway (internal/gateway, §4.6): it is the poll loop that
// notices a process has staged a syscall in its mailbox, runs it
// through the gateway, and writes the result back before waking the
// process up again. Adapted from the teacher's internal/service worker-
// loop-per-unit-of-work pattern.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orbital/kernel/internal/gateway"
	"github.com/orbital/kernel/internal/hal"
	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/mailbox"
)

// waker is satisfied by HAL backends whose mailbox isn't real shared
// memory and so can't be spin-polled cheaply — haldocker.Backend
// implements this with a Redis BLPOP, the non-shared-memory wait
// primitive spec §9 calls for. Backends that don't implement it (halmem,
// hal.Null) fall back to PollInterval-spaced polling.
type waker interface {
	WaitForWake(ctx context.Context, pid kerntypes.ProcessId) error
}

// Dispatcher owns one poll goroutine per watched pid.
type Dispatcher struct {
	hal hal.HAL
	gw  *gateway.Gateway

	pollInterval time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	cancels map[kerntypes.ProcessId]context.CancelFunc
}

// New constructs a Dispatcher. pollInterval governs the spin-poll
// cadence for HAL backends without a wake primitive; 1ms is a reasonable
// default for in-process mode.
func New(h hal.HAL, gw *gateway.Gateway, pollInterval time.Duration) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Millisecond
	}
	return &Dispatcher{
		hal:          h,
		gw:           gw,
		pollInterval: pollInterval,
		logger:       slog.Default().With("component", "dispatcher"),
		cancels:      make(map[kerntypes.ProcessId]context.CancelFunc),
	}
}

// Watch starts polling pid's mailbox in its own goroutine. Calling it
// twice for the same pid is a no-op; the second call is dropped.
func (d *Dispatcher) Watch(ctx context.Context, pid kerntypes.ProcessId) {
	d.mu.Lock()
	if _, exists := d.cancels[pid]; exists {
		d.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancels[pid] = cancel
	d.mu.Unlock()

	go d.loop(loopCtx, pid)
}

// Unwatch stops polling pid, used when the process is reaped.
func (d *Dispatcher) Unwatch(pid kerntypes.ProcessId) {
	d.mu.Lock()
	cancel, exists := d.cancels[pid]
	delete(d.cancels, pid)
	d.mu.Unlock()
	if exists {
		cancel()
	}
}

func (d *Dispatcher) loop(ctx context.Context, pid kerntypes.ProcessId) {
	defer func() {
		d.mu.Lock()
		delete(d.cancels, pid)
		d.mu.Unlock()
	}()

	for {
		if err := d.awaitPending(ctx, pid); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("await pending failed", "pid", pid, "error", err)
			time.Sleep(d.pollInterval)
			continue
		}
		if err := d.dispatchOnce(pid); err != nil {
			d.logger.Warn("dispatch failed", "pid", pid, "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// awaitPending blocks until pid's mailbox has a staged request, using
// the backend's wake primitive when it has one.
func (d *Dispatcher) awaitPending(ctx context.Context, pid kerntypes.ProcessId) error {
	if w, ok := d.hal.(waker); ok {
		for {
			if err := w.WaitForWake(ctx, pid); err != nil {
				return err
			}
			raw, err := d.hal.ReadMailbox(pid)
			if err != nil {
				return err
			}
			if mailbox.Wrap(raw).LoadStatus() == mailbox.StatusPending {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	for {
		raw, err := d.hal.ReadMailbox(pid)
		if err != nil {
			return err
		}
		if mailbox.Wrap(raw).LoadStatus() == mailbox.StatusPending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// dispatchOnce reads one staged syscall, runs it through the gateway,
// writes the response, and flips status back to Ready (spec §4.8 steps
// 4-5). It intentionally does not return the syscall's own error result
// as a Go error — a failed syscall is a normal mailbox round trip, not a
// dispatcher fault. Only a HAL-boundary failure (can't read/write the
// mailbox at all) is.
func (d *Dispatcher) dispatchOnce(pid kerntypes.ProcessId) error {
	raw, err := d.hal.ReadMailbox(pid)
	if err != nil {
		return err
	}
	box := mailbox.Wrap(raw)
	call := box.ReadRequest()

	result, commitIds := d.gw.Syscall(pid, call)
	encodeResult(box, result, commitIds)
	box.StoreStatus(mailbox.StatusReady)

	return d.hal.WriteMailbox(pid, box.Snapshot())
}
