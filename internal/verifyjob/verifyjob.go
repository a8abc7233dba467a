// Package verifyjob runs the CORE's continuous self-audit: periodically
// replaying the CommitLog and checking the replayed state_hash against
// the live gateway's own (SPEC_FULL §4.7 expansion). A mismatch means a
// Step/replay divergence or log corruption that the hash chain alone
// cannot catch, since the chain only proves the log wasn't tampered
// with after the fact.
//
// It is grounded on the teacher's internal/webhooks/cloud_dispatcher.go:
// the same durable-dispatch-with-in-memory-fallback shape, repointed
// from "POST a webhook to a subscriber" to "enqueue a verify callback",
// with the in-memory fallback becoming a synchronous local ticker
// instead of a worker pool, since there is exactly one thing to verify
// rather than N subscribers to fan out to.
package verifyjob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"

	"github.com/orbital/kernel/internal/config"
	"github.com/orbital/kernel/internal/gateway"
	"github.com/orbital/kernel/internal/replay"
)

// defaultPollInterval is how often Run checks whether IntervalCommits
// new commits have landed since the last verification. Both modes poll
// on this ticker: with Cloud Tasks configured a crossed threshold
// enqueues a task, otherwise the replay runs locally on the tick.
const defaultPollInterval = 2 * time.Second

// callbackPayload is the body of the Cloud Task HTTP request and of a
// direct POST to Callback from outside Cloud Tasks entirely (used by
// tests and by operators driving verification by hand).
type callbackPayload struct {
	UpToSeq uint64 `json:"up_to_seq"`
}

// Job watches a gateway's CommitLog and triggers ReplayAndVerify every
// cfg.IntervalCommits commits, either by enqueueing a Cloud Task that
// calls back into Callback, or — when Cloud Tasks isn't configured — by
// running the replay synchronously on a local ticker.
type Job struct {
	gw     *gateway.Gateway
	cfg    config.VerifyJobConfig
	client *cloudtasks.Client
	queue  string
	logger *slog.Logger

	lastVerifiedSeq atomic.Uint64
	lastMismatch    atomic.Bool
}

// New builds a Job. If cfg.Enabled and cfg.CloudTasks.ProjectID is set,
// it dials a real Cloud Tasks client; a dial failure is logged and the
// Job falls back to local-ticker mode rather than failing construction,
// matching CloudDispatcher's "fall back to in-memory delivery" posture
// applied one layer earlier.
func New(gw *gateway.Gateway, cfg config.VerifyJobConfig) *Job {
	j := &Job{gw: gw, cfg: cfg, logger: slog.Default().With("component", "verifyjob")}

	if cfg.Enabled && cfg.CloudTasks.ProjectID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := cloudtasks.NewClient(ctx)
		if err != nil {
			j.logger.Warn("cloud tasks client unavailable, falling back to local ticker", "error", err)
		} else {
			j.client = client
			j.queue = fmt.Sprintf("projects/%s/locations/%s/queues/%s",
				cfg.CloudTasks.ProjectID, cfg.CloudTasks.LocationID, cfg.CloudTasks.QueueID)
		}
	}
	return j
}

// Run blocks until ctx is cancelled, driving whichever mode New settled
// on. Disabled jobs (cfg.Enabled == false) return immediately — same
// no-op posture as a CloudDispatcher built with fallbackWorkers == 0 and
// no queue, just decided one layer up instead of by a zero value.
func (j *Job) Run(ctx context.Context) {
	if !j.cfg.Enabled {
		j.logger.Info("verify job disabled")
		return
	}
	j.logger.Info("verify job started", "interval_commits", j.cfg.IntervalCommits, "cloud_tasks", j.client != nil)

	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.checkThreshold()
		}
	}
}

func (j *Job) checkThreshold() {
	commits := j.gw.Commits()
	if len(commits) == 0 {
		return
	}
	head := commits[len(commits)-1].Seq
	last := j.lastVerifiedSeq.Load()
	if head-last < j.cfg.IntervalCommits {
		return
	}

	if j.client != nil {
		j.enqueueCloudTask(head)
		return
	}
	j.verify(head)
}

// enqueueCloudTask asks Cloud Tasks to POST a callbackPayload at
// cfg.CloudTasks.TargetURL, mirroring CloudDispatcher.enqueueTask's
// fire-and-forget goroutine and its own fallback-on-enqueue-failure.
func (j *Job) enqueueCloudTask(upToSeq uint64) {
	payload, err := json.Marshal(callbackPayload{UpToSeq: upToSeq})
	if err != nil {
		j.logger.Error("marshal verify callback payload", "error", err)
		return
	}

	req := &taskspb.CreateTaskRequest{
		Parent: j.queue,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        j.cfg.CloudTasks.TargetURL,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       payload,
				},
			},
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := j.client.CreateTask(ctx, req); err != nil {
			j.logger.Warn("cloud task enqueue failed, verifying locally instead", "error", err)
			j.verify(upToSeq)
		}
	}()
}

// verify runs replay.ReplayAndVerify over the CommitLog prefix ending at
// upToSeq and records the outcome. It never panics or returns an error
// to the caller — a verification failure is a fact to log and expose via
// lastMismatch, not a process-ending event, since the live gateway keeps
// serving syscalls regardless of what the background auditor finds.
func (j *Job) verify(upToSeq uint64) {
	commits := j.gw.Commits()
	if uint64(len(commits)) <= upToSeq {
		return
	}
	prefix := commits[:upToSeq+1]
	want := j.gw.StateHash()

	_, err := replay.ReplayAndVerify(prefix, want)
	if err != nil {
		j.lastMismatch.Store(true)
		j.logger.Error("replay verification failed", "up_to_seq", upToSeq, "error", err)
		return
	}
	j.lastMismatch.Store(false)
	j.lastVerifiedSeq.Store(upToSeq)
	j.logger.Info("replay verification ok", "up_to_seq", upToSeq)
}

// LastMismatch reports whether the most recently completed verification
// found a state_hash disagreement, for the admin API's /v1/integrity to
// surface alongside the CommitLog's own hash-chain check.
func (j *Job) LastMismatch() bool {
	return j.lastMismatch.Load()
}

// Callback is the HTTP handler Cloud Tasks calls back into (orbitald's
// /internal/verify), and the same handler a human or a test can drive
// directly with a POST. It runs the replay synchronously so Cloud Tasks
// sees the real outcome as the HTTP response status, enabling its own
// retry-with-backoff on a 5xx the way any other Cloud Tasks target does.
func (j *Job) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload callbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	j.verify(payload.UpToSeq)
	if j.lastMismatch.Load() {
		http.Error(w, "state_hash mismatch", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}
