package repo

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lumora/storefront-api/internal/cart"
)

// JournalEntry is one orchestrated mutation outcome. Only outcomes are
// stored, never cart contents; the remote platform owns those.
type JournalEntry struct {
	ID           string
	SessionID    string
	CartID       string
	Op           string
	Success      bool
	WasRecovered bool
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
}

type MySQLJournal struct {
	db  *sql.DB
	log *slog.Logger
}

func NewMySQLJournal(db *sql.DB, log *slog.Logger) *MySQLJournal {
	return &MySQLJournal{db: db, log: log}
}

func (j *MySQLJournal) Insert(ctx context.Context, e *JournalEntry) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO cart_mutations (id,session_id,cart_id,op,success,was_recovered,error_kind,error_message,created_at)
VALUES (?,?,?,?,?,?,?,?,NOW())
`, e.ID, e.SessionID, e.CartID, e.Op, e.Success, e.WasRecovered, e.ErrorKind, e.ErrorMessage)
	return err
}

func (j *MySQLJournal) ListBySession(ctx context.Context, sessionID string, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id,session_id,cart_id,op,success,was_recovered,error_kind,error_message,created_at
FROM cart_mutations WHERE session_id=? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.CartID, &e.Op, &e.Success,
			&e.WasRecovered, &e.ErrorKind, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Record implements cart.ResultSink. Best-effort: journal failures are logged
// and never fail the mutation they describe.
func (j *MySQLJournal) Record(ctx context.Context, sessionID string, op cart.Op, res cart.MutationResult) {
	e := &JournalEntry{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Op:           string(op),
		Success:      res.Success,
		WasRecovered: res.WasRecovered,
	}
	if res.Cart != nil {
		e.CartID = res.Cart.ID
	}
	if len(res.Errors) > 0 {
		e.ErrorKind = string(res.Errors[0].Kind)
		e.ErrorMessage = res.Errors[0].Message
	}
	if err := j.Insert(ctx, e); err != nil {
		j.log.Warn("journal insert failed", "err", err, "session_id", sessionID)
	}
}

var _ cart.ResultSink = (*MySQLJournal)(nil)
