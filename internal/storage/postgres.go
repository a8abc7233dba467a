package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/syslog"
)

// Postgres persists the CommitLog into a single append-only table,
// adapted from the teacher's DatabaseStateManager connection and
// transaction-per-call pattern (internal/gvisor/database_state.go) —
// here there is no savepoint/rollback, only straight inserts, since
// commits are never retracted once appended.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS orbital_commits (
	seq BIGINT PRIMARY KEY,
	id BYTEA NOT NULL,
	prev_commit BYTEA NOT NULL,
	timestamp BIGINT NOT NULL,
	request_id BIGINT,
	tag SMALLINT NOT NULL,
	body BYTEA NOT NULL
)`

const createSysEventsTableSQL = `
CREATE TABLE IF NOT EXISTS orbital_sysevents (
	id BIGINT NOT NULL,
	sender BIGINT NOT NULL,
	kind SMALLINT NOT NULL,
	syscall_num INT NOT NULL,
	request_id BIGINT NOT NULL,
	result BIGINT NOT NULL,
	timestamp BIGINT NOT NULL
)`

// NewPostgres connects to dsn and ensures the commits table exists.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create commits table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSysEventsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sysevents table: %w", err)
	}
	return &Postgres{db: db, logger: slog.Default().With("component", "storage.postgres")}, nil
}

// Evicted persists a SysLog ring-buffer event that's about to be
// overwritten, satisfying syslog.OverflowSink (SPEC_FULL §4.5
// expansion). It logs rather than returns on failure — OverflowSink has
// no error return, same "durability, not correctness" posture as
// gateway.persist.
func (p *Postgres) Evicted(e kerntypes.SysEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO orbital_sysevents (id, sender, kind, syscall_num, request_id, result, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(e.Id), int64(e.Sender), int16(e.Kind), int32(e.SyscallNum), int64(e.RequestId), e.Result, int64(e.Timestamp),
	)
	if err != nil {
		p.logger.Error("sysevent overflow persist failed", "id", e.Id, "error", err)
	}
}

func (p *Postgres) Append(c StoredCommit) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var requestID any
	if c.RequestId != nil {
		requestID = int64(*c.RequestId)
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO orbital_commits (seq, id, prev_commit, timestamp, request_id, tag, body)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (seq) DO NOTHING`,
		int64(c.Seq), c.Id[:], c.PrevCommit[:], int64(c.Timestamp), requestID, int16(c.Tag), c.Body,
	)
	if err != nil {
		return fmt.Errorf("insert commit seq=%d: %w", c.Seq, err)
	}
	return nil
}

func (p *Postgres) LoadAll() ([]StoredCommit, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT seq, id, prev_commit, timestamp, request_id, tag, body FROM orbital_commits ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("load commits: %w", err)
	}
	defer rows.Close()

	var out []StoredCommit
	for rows.Next() {
		var (
			sc        StoredCommit
			idBytes   []byte
			prevBytes []byte
			requestID sql.NullInt64
			tag       int16
		)
		if err := rows.Scan(&sc.Seq, &idBytes, &prevBytes, &sc.Timestamp, &requestID, &tag, &sc.Body); err != nil {
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
	p.logger.Info("loaded commit history", "count", len(out))
	return out, rows.Err()
}

func (p *Postgres) Close() error { return p.db.Close() }

var _ CommitStore = (*Postgres)(nil)
var _ syslog.OverflowSink = (*Postgres)(nil)
