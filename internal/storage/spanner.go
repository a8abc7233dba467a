package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/syslog"
)

// Spanner persists the CommitLog to Cloud Spanner, for deployments that
// already run Spanner for other state (reputation, escrow ledgers in the
// teacher's stack) and want one storage system rather than two. Adapted
// from the teacher's SpannerWallet connection and
// ReadWriteTransaction/BufferWrite pattern.
type Spanner struct {
	client *spanner.Client
	logger *slog.Logger
}

// NewSpanner connects to the named database. The OrbitalCommits table
// must already exist (seq INT64, id/prev_commit/body BYTES, timestamp
// INT64, request_id INT64, tag INT64) — Spanner DDL is out of scope for
// this client, same as the teacher never creates its own Agents table.
func NewSpanner(project, instance, database string) (*Spanner, error) {
	ctx := context.Background()
	dbPath := fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, database)
	client, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("spanner client: %w", err)
	}
	return &Spanner{client: client, logger: slog.Default().With("component", "storage.spanner")}, nil
}

func (s *Spanner) Append(c StoredCommit) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var requestID any
	if c.RequestId != nil {
		requestID = int64(*c.RequestId)
	}

	_, err := s.client.Apply(ctx, []*spanner.Mutation{
		spanner.InsertOrUpdate("OrbitalCommits",
			[]string{"Seq", "Id", "PrevCommit", "Timestamp", "RequestId", "Tag", "Body"},
			[]interface{}{int64(c.Seq), c.Id[:], c.PrevCommit[:], int64(c.Timestamp), requestID, int64(c.Tag), c.Body},
		),
	})
	if err != nil {
		return fmt.Errorf("apply commit seq=%d: %w", c.Seq, err)
	}
	return nil
}

// Evicted persists a SysLog ring-buffer event dropped from the head of the
// buffer, satisfying syslog.OverflowSink (SPEC_FULL §4.5 expansion). The
// OrbitalSysEvents table must already exist (id/sender/result INT64, kind/
// syscall_num/request_id INT64, timestamp INT64), same out-of-scope DDL
// posture as OrbitalCommits.
func (s *Spanner) Evicted(e kerntypes.SysEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.client.Apply(ctx, []*spanner.Mutation{
		spanner.InsertOrUpdate("OrbitalSysEvents",
			[]string{"Id", "Sender", "Kind", "SyscallNum", "RequestId", "Result", "Timestamp"},
			[]interface{}{int64(e.Id), int64(e.Sender), int64(e.Kind), int64(e.SyscallNum), int64(e.RequestId), e.Result, int64(e.Timestamp)},
		),
	})
	if err != nil {
		s.logger.Error("sysevent overflow persist failed", "id", e.Id, "error", err)
	}
}

func (s *Spanner) LoadAll() ([]StoredCommit, error) {
	ctx := context.Background()
	stmt := spanner.Statement{SQL: `SELECT Seq, Id, PrevCommit, Timestamp, RequestId, Tag, Body FROM OrbitalCommits ORDER BY Seq ASC`}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []StoredCommit
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate commits: %w", err)
		}

		var (
			sc        StoredCommit
			idBytes   []byte
			prevBytes []byte
			requestID spanner.NullInt64
			tag       int64
		)
		if err := row.Columns(&sc.Seq, &idBytes, &prevBytes, &sc.Timestamp, &requestID, &tag, &sc.Body); err != nil {
			return nil, fmt.Errorf("scan commit row: %w", err)
		}
		copy(sc.Id[:], idBytes)
		copy(sc.PrevCommit[:], prevBytes)
		sc.Tag = byte(tag)
		if requestID.Valid {
			v := uint64(requestID.Int64)
			sc.RequestId = &v
		}
		out = append(out, sc)
	}
	s.logger.Info("loaded commit history", "count", len(out))
	return out, nil
}

func (s *Spanner) Close() error {
	s.client.Close()
	return nil
}

var _ CommitStore = (*Spanner)(nil)
var _ syslog.OverflowSink = (*Spanner)(nil)
