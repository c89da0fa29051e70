package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"GoldLedger/internal/core"

	"github.com/google/uuid"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventLogWriter writes envelopes, moves and accepted command keys using
// multi-row INSERTs. Every insert is idempotent on its primary key, so a
// batch retried after an ambiguous commit is harmless.
type EventLogWriter struct{}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EnvelopeID     uuid.UUID
	EventType      string
	CommandType    string
	IdempotencyKey string
	Subject        string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// MoveRow represents a row in event_log.moves
type MoveRow struct {
	MoveID        uuid.UUID
	BatchID       uuid.UUID
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        string // base-10 fixed-point integer
	JournalType   string
	Timestamp     int64
}

// CommandRow represents a row in event_log.commands
type CommandRow struct {
	CommandType    string
	IdempotencyKey string
	LastSequence   int64
}

// Rows flattens one processor output into table rows. Rejected outputs
// produce no command row so the command can be retried.
func Rows(out core.CoreOutput) ([]EventRow, []MoveRow, *CommandRow) {
	events := make([]EventRow, 0, len(out.Envelopes))
	for _, env := range out.Envelopes {
		events = append(events, EventRow{
			Sequence:       env.Sequence,
			EnvelopeID:     env.EnvelopeID,
			EventType:      env.EventType.String(),
			CommandType:    env.CommandType,
			IdempotencyKey: env.IdempotencyKey,
			Subject:        env.Subject,
			Payload:        env.Payload,
			StateHash:      append([]byte(nil), env.StateHash[:]...),
			PrevHash:       append([]byte(nil), env.PrevHash[:]...),
			Timestamp:      env.Timestamp,
		})
	}

	var moves []MoveRow
	for _, b := range out.Moves {
		for _, j := range b.Journals {
			moves = append(moves, MoveRow{
				MoveID:        j.JournalID,
				BatchID:       j.BatchID,
				EventRef:      j.EventRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Asset:         j.Asset,
				Amount:        j.Amount.Dec(),
				JournalType:   j.JournalType.String(),
				Timestamp:     j.Timestamp,
			})
		}
	}

	if out.Rejected {
		return events, moves, nil
	}
	return events, moves, &CommandRow{
		CommandType:    out.CommandType,
		IdempotencyKey: out.IdempotencyKey,
		LastSequence:   out.LastSequence(),
	}
}

// placeholders returns "($1, $2, ...), (...)" for rows of width columns.
func placeholders(rows, width int) string {
	values := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		cols := make([]string, width)
		for c := 0; c < width; c++ {
			cols[c] = fmt.Sprintf("$%d", i*width+c+1)
		}
		values = append(values, "("+strings.Join(cols, ", ")+")")
	}
	return strings.Join(values, ", ")
}

// WriteEventBatch writes a batch of events to event_log.events.
func (EventLogWriter) WriteEventBatch(ctx context.Context, x Execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(events)*10)
	for _, e := range events {
		args = append(args,
			e.Sequence, e.EnvelopeID, e.EventType, e.CommandType, e.IdempotencyKey,
			e.Subject, e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query := `INSERT INTO event_log.events
		(sequence, envelope_id, event_type, command_type, idempotency_key, subject, payload, state_hash, prev_hash, timestamp)
		VALUES ` + placeholders(len(events), 10) + ` ON CONFLICT (sequence) DO NOTHING`

	_, err := x.ExecContext(ctx, query, args...)
	return err
}

// WriteMoveBatch writes a batch of moves to event_log.moves.
func (EventLogWriter) WriteMoveBatch(ctx context.Context, x Execer, moves []MoveRow) error {
	if len(moves) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(moves)*10)
	for _, m := range moves {
		args = append(args,
			m.MoveID, m.BatchID, m.EventRef, m.Sequence, m.DebitAccount,
			m.CreditAccount, m.Asset, m.Amount, m.JournalType, m.Timestamp,
		)
	}

	query := `INSERT INTO event_log.moves
		(move_id, batch_id, event_ref, sequence, debit_account, credit_account, asset, amount, journal_type, timestamp)
		VALUES ` + placeholders(len(moves), 10) + ` ON CONFLICT (move_id) DO NOTHING`

	_, err := x.ExecContext(ctx, query, args...)
	return err
}

// WriteCommandBatch records accepted command keys in event_log.commands.
func (EventLogWriter) WriteCommandBatch(ctx context.Context, x Execer, commands []CommandRow) error {
	if len(commands) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(commands)*3)
	for _, c := range commands {
		args = append(args, c.CommandType, c.IdempotencyKey, c.LastSequence)
	}

	query := `INSERT INTO event_log.commands (command_type, idempotency_key, last_sequence)
		VALUES ` + placeholders(len(commands), 3) + ` ON CONFLICT (command_type, idempotency_key) DO NOTHING`

	_, err := x.ExecContext(ctx, query, args...)
	return err
}
