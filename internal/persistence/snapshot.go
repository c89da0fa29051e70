package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"GoldLedger/internal/core"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// snapshotFormat is bumped when core.Snapshot changes incompatibly.
const snapshotFormat = 1

// SnapshotManager stores engine snapshots and reads the event log back for
// recovery checks.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists snap. A snapshot is only trusted once MarkVerified
// has confirmed its tip is in the event log.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap core.Snapshot) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, errors.Wrap(err, "marshal snapshot")
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = FALSE
	`, uuid.New(), snap.Sequence, data, snap.StateHash[:], snapshotFormat, len(data), time.Now().UTC())
	if err != nil {
		return 0, errors.Wrapf(err, "save snapshot %d", snap.Sequence)
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.Snapshot, error) {
	var data []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE AND format_version = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, snapshotFormat).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}

	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "unmarshal snapshot")
	}
	return &snap, nil
}

// Verify checks that the event at the snapshot's sequence carries the
// snapshot's state hash and marks it verified. It returns false while the
// persistence worker has not yet written that event.
func (sm *SnapshotManager) Verify(ctx context.Context, sequence int64) (bool, error) {
	res, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots s SET verified = TRUE
		FROM event_log.events e
		WHERE s.sequence = $1 AND e.sequence = s.sequence AND e.state_hash = s.state_hash
	`, sequence)
	if err != nil {
		return false, errors.Wrapf(err, "verify snapshot %d", sequence)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// VerifyPending marks every snapshot whose tip has since been persisted.
func (sm *SnapshotManager) VerifyPending(ctx context.Context) (int64, error) {
	res, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots s SET verified = TRUE
		FROM event_log.events e
		WHERE s.verified = FALSE AND e.sequence = s.sequence AND e.state_hash = s.state_hash
	`)
	if err != nil {
		return 0, errors.Wrap(err, "verify pending snapshots")
	}
	return res.RowsAffected()
}

// LoadEventsFrom loads up to limit events with sequence >= fromSequence.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, envelope_id, event_type, command_type, idempotency_key, subject,
		       payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, errors.Wrap(err, "load events")
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EnvelopeID, &e.EventType, &e.CommandType, &e.IdempotencyKey, &e.Subject,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := sm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "latest sequence")
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// GetStateHashAt returns the state hash stored at sequence.
func (sm *SnapshotManager) GetStateHashAt(ctx context.Context, sequence int64) ([32]byte, error) {
	var out [32]byte
	var h []byte
	err := sm.db.QueryRowContext(ctx, `SELECT state_hash FROM event_log.events WHERE sequence = $1`, sequence).Scan(&h)
	if err != nil {
		return out, errors.Wrapf(err, "state hash at %d", sequence)
	}
	copy(out[:], h)
	return out, nil
}
