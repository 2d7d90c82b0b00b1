package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/pkg/logger"
	"github.com/okian/pointsledger/pkg/metrics"
)

// SQLStore implements Store over database/sql for sqlite and postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  logger.Logger
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// Open connects to dsn with the dialect's driver and applies the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, failure.Storage("open", err)
	}
	s, err := New(ctx, db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and applies the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*SQLStore, error) {
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dialect == SQLite {
		// sqlite serialises writers; a single connection keeps :memory: databases
		// alive and pragmas applied.
		db.SetMaxOpenConns(1)
		for _, p := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, p); err != nil {
				return nil, failure.Storage("pragma", err)
			}
		}
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return failure.Storage("migrate", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect returns the backend in use.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) q(query string) string { return s.dialect.rebind(query) }

// write runs fn in one transaction and accounts for it.
func (s *SQLStore) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordLedgerWrite(op, true)
		return failure.Storage(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		metrics.RecordLedgerWrite(op, true)
		s.logger.Error(ctx, "ledger write failed", logger.String("op", op), logger.Error(err))
		return failure.Storage(op, err)
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordLedgerWrite(op, true)
		return failure.Storage(op, err)
	}
	metrics.RecordLedgerWrite(op, false)
	return nil
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// UpsertParticipants creates or corrects participants keyed by (account, profile_ref).
// A blank email never overwrites a stored one.
func (s *SQLStore) UpsertParticipants(ctx context.Context, account string, ds []model.Descriptor) ([]model.Participant, error) {
	out := make([]model.Participant, 0, len(ds))
	query := s.q(`INSERT INTO participants (account, name, email, profile_ref)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account, profile_ref) DO UPDATE SET
			name = excluded.name,
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE participants.email END
		RETURNING id, email, current_points, last_updated`)

	err := s.write(ctx, "upsert_participants", func(tx *sql.Tx) error {
		for _, d := range ds {
			d = d.Normalize()
			if d.Name == "" {
				return fmt.Errorf("%w: empty name", ErrInvalidParticipant)
			}
			p := model.Participant{Account: account, Name: d.Name, ProfileRef: d.ProfileRef}
			var updated int64
			if err := tx.QueryRowContext(ctx, query, account, d.Name, d.Email, d.ProfileRef).
				Scan(&p.ID, &p.Email, &p.CurrentPoints, &updated); err != nil {
				return err
			}
			p.LastUpdated = fromMicros(updated)
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const participantColumns = `id, account, name, email, profile_ref, current_points, last_updated`

func scanParticipant(row interface{ Scan(...any) error }) (model.Participant, error) {
	var (
		p       model.Participant
		updated int64
	)
	if err := row.Scan(&p.ID, &p.Account, &p.Name, &p.Email, &p.ProfileRef, &p.CurrentPoints, &updated); err != nil {
		return model.Participant{}, err
	}
	p.LastUpdated = fromMicros(updated)
	return p, nil
}

// Participants lists an account's participants by id.
func (s *SQLStore) Participants(ctx context.Context, account string) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+participantColumns+` FROM participants WHERE account = ? ORDER BY id`), account)
	if err != nil {
		return nil, failure.Storage("participants", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, failure.Storage("participants", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.Storage("participants", err)
	}
	return out, nil
}

// Participant returns one participant of the account.
func (s *SQLStore) Participant(ctx context.Context, account string, id int64) (model.Participant, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+participantColumns+` FROM participants WHERE account = ? AND id = ?`), account, id)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, ErrNotFound
	}
	if err != nil {
		return model.Participant{}, failure.Storage("participant", err)
	}
	return p, nil
}

// History returns a participant's records, newest first.
func (s *SQLStore) History(ctx context.Context, participantID int64) ([]model.PointsRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, participant_id, job_id, points, recorded_at
		FROM points_history WHERE participant_id = ? ORDER BY recorded_at DESC, id DESC`), participantID)
	if err != nil {
		return nil, failure.Storage("history", err)
	}
	defer rows.Close()

	var out []model.PointsRecord
	for rows.Next() {
		var (
			r  model.PointsRecord
			at int64
		)
		if err := rows.Scan(&r.ID, &r.ParticipantID, &r.JobID, &r.Points, &at); err != nil {
			return nil, failure.Storage("history", err)
		}
		r.RecordedAt = fromMicros(at)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.Storage("history", err)
	}
	return out, nil
}

const insertRecord = `INSERT INTO points_history (participant_id, job_id, points, recorded_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (participant_id, job_id) DO NOTHING`

// AppendRecord adds one ledger entry; replays of the same job are ignored.
func (s *SQLStore) AppendRecord(ctx context.Context, participantID int64, jobID string, points int, at time.Time) error {
	return s.write(ctx, "append_record", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(insertRecord), participantID, jobID, points, toMicros(at))
		return err
	})
}

// LatestAndPrevious returns the two most recent points values.
func (s *SQLStore) LatestAndPrevious(ctx context.Context, participantID int64) (*int, *int, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT points FROM points_history
		WHERE participant_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 2`), participantID)
	if err != nil {
		return nil, nil, failure.Storage("latest_and_previous", err)
	}
	defer rows.Close()

	var values []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, nil, failure.Storage("latest_and_previous", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, failure.Storage("latest_and_previous", err)
	}

	var latest, previous *int
	if len(values) > 0 {
		latest = &values[0]
	}
	if len(values) > 1 {
		previous = &values[1]
	}
	return latest, previous, nil
}

// LastRefresh returns when the account last completed a refresh.
func (s *SQLStore) LastRefresh(ctx context.Context, account string) (time.Time, bool, error) {
	var at int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT refreshed_at FROM refresh_markers WHERE account = ?`), account).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, failure.Storage("last_refresh", err)
	}
	return fromMicros(at), true, nil
}

// CommitCycle writes a finalized cycle atomically and returns the number of new records.
func (s *SQLStore) CommitCycle(ctx context.Context, c Cycle) (int, error) {
	inserted := 0
	at := toMicros(c.At)
	err := s.write(ctx, "commit_cycle", func(tx *sql.Tx) error {
		if !c.MarkerBefore.IsZero() {
			if err := s.checkMarker(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, e := range c.Entries {
			res, err := tx.ExecContext(ctx, s.q(insertRecord), e.ParticipantID, c.JobID, e.Points, at)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE participants
				SET current_points = ?, last_updated = ? WHERE id = ? AND account = ?`),
				e.Points, at, e.ParticipantID, c.Account); err != nil {
				return err
			}
		}
		if !c.SetMarker {
			return nil
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO refresh_markers (account, refreshed_at) VALUES (?, ?)
			ON CONFLICT (account) DO UPDATE SET refreshed_at = excluded.refreshed_at`), c.Account, at)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLStore) checkMarker(ctx context.Context, tx *sql.Tx, c Cycle) error {
	var committed int64
	if err := tx.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM points_history WHERE job_id = ?`), c.JobID).Scan(&committed); err != nil {
		return err
	}
	if committed > 0 {
		return nil
	}
	var at int64
	err := tx.QueryRowContext(ctx,
		s.q(`SELECT refreshed_at FROM refresh_markers WHERE account = ?`), c.Account).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if at >= toMicros(c.MarkerBefore) {
		return ErrMarkerAdvanced
	}
	return nil
}

// SaveJob persists the job snapshot.
func (s *SQLStore) SaveJob(ctx context.Context, j *job.Job) error {
	state, err := json.Marshal(j)
	if err != nil {
		return failure.Storage("save_job", err)
	}
	return s.write(ctx, "save_job", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO jobs (id, account, status, state, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status = excluded.status, state = excluded.state, updated_at = excluded.updated_at`),
			j.ID, j.Account, string(j.Status), string(state), toMicros(j.UpdatedAt))
		return err
	})
}

// LoadJob restores a job snapshot.
func (s *SQLStore) LoadJob(ctx context.Context, id string) (*job.Job, error) {
	var state string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT state FROM jobs WHERE id = ?`), id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, failure.Storage("load_job", err)
	}
	var j job.Job
	if err := json.Unmarshal([]byte(state), &j); err != nil {
		return nil, failure.Storage("load_job", err)
	}
	return &j, nil
}

// DeleteJobsBefore drops every job idle since cutoff.
func (s *SQLStore) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	expired := 0
	err := s.write(ctx, "expire_jobs", func(tx *sql.Tx) error {
		var n int64
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM jobs
			WHERE updated_at < ? AND status NOT IN (?, ?)`),
			toMicros(cutoff), string(job.StatusCompleted), string(job.StatusFailed)).Scan(&n); err != nil {
			return err
		}
		expired = int(n)
		_, err := tx.ExecContext(ctx, s.q(`DELETE FROM jobs WHERE updated_at < ?`), toMicros(cutoff))
		return err
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// Purge removes every participant, record, marker and job of the account.
func (s *SQLStore) Purge(ctx context.Context, account string) error {
	return s.write(ctx, "purge", func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM points_history WHERE participant_id IN (SELECT id FROM participants WHERE account = ?)`,
			`DELETE FROM participants WHERE account = ?`,
			`DELETE FROM refresh_markers WHERE account = ?`,
			`DELETE FROM jobs WHERE account = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, s.q(stmt), account); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats counts rows across tables.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, s.q(`SELECT
		(SELECT COUNT(*) FROM participants),
		(SELECT COUNT(*) FROM points_history),
		(SELECT COUNT(*) FROM jobs),
		(SELECT COUNT(*) FROM jobs WHERE status NOT IN (?, ?))`),
		string(job.StatusCompleted), string(job.StatusFailed)).
		Scan(&st.Participants, &st.Records, &st.Jobs, &st.ActiveJobs)
	if err != nil {
		return Stats{}, failure.Storage("stats", err)
	}
	return st, nil
}
