package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

// Ensure ActionRepository implements ports.ActionStorePort.
var _ ports.ActionStorePort = (*ActionRepository)(nil)

const actionColumns = `id, type, data, metadata, status, retry_count, last_error, created_at, updated_at`

// ActionRepository implements ports.ActionStorePort on a SQLite database.
type ActionRepository struct {
	conn *Connection
	now  func() time.Time

	initMu sync.Mutex
}

// NewActionRepository creates a repository over conn. The connection is opened
// lazily by Initialize.
func NewActionRepository(conn *Connection) *ActionRepository {
	return &ActionRepository{
		conn: conn,
		now:  time.Now,
	}
}

// Initialize opens the database and applies migrations. Calling it again after
// success is a no-op; after a failure it retries the open. A repository that
// has been closed stays closed.
func (r *ActionRepository) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.conn.IsOpen() {
		return nil
	}
	if r.conn.IsClosed() {
		_, err := r.conn.DB()
		return domainErrors.Storage("initialize action store", err)
	}
	if err := r.conn.Open(); err != nil {
		return domainErrors.Storage("initialize action store", err)
	}
	return nil
}

// Enqueue persists a new pending action.
func (r *ActionRepository) Enqueue(ctx context.Context, n action.NewAction) (*action.QueuedAction, error) {
	if err := n.Normalize(); err != nil {
		return nil, err
	}

	db, err := r.db()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	a := &action.QueuedAction{
		ID:        uuid.New().String(),
		Type:      n.Type,
		Data:      n.Data,
		Metadata:  n.Metadata,
		Status:    action.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO offline_actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		string(a.Type),
		string(a.Data),
		nullableJSON(a.Metadata),
		string(a.Status),
		a.RetryCount,
		a.LastError,
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return nil, domainErrors.Storage("enqueue action", err)
	}

	return a, nil
}

// Get retrieves an action by ID. Returns nil, nil when it does not exist.
func (r *ActionRepository) Get(ctx context.Context, id string) (*action.QueuedAction, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM offline_actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domainErrors.Storage("get action", err)
	}
	return a, nil
}

// Update merges the non-nil fields of u into the stored action.
func (r *ActionRepository) Update(ctx context.Context, id string, u action.Update) error {
	db, err := r.db()
	if err != nil {
		return err
	}

	var status, retryCount, lastError any
	if u.Status != nil {
		if !u.Status.Valid() {
			return domainErrors.NewError(domainErrors.CodeValidation,
				fmt.Sprintf("invalid status %q", *u.Status), domainErrors.ErrInvalidAction)
		}
		status = string(*u.Status)
	}
	if u.RetryCount != nil {
		retryCount = *u.RetryCount
	}
	if u.LastError != nil {
		lastError = *u.LastError
	}

	result, err := db.ExecContext(ctx, `
		UPDATE offline_actions SET
			status = COALESCE(?, status),
			retry_count = COALESCE(?, retry_count),
			last_error = COALESCE(?, last_error),
			updated_at = ?
		WHERE id = ?
	`, status, retryCount, lastError, r.now().UTC().UnixNano(), id)
	if err != nil {
		return domainErrors.Storage("update action", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domainErrors.Storage("update action", err)
	}
	if affected == 0 {
		return domainErrors.WithContext(
			domainErrors.NewError(domainErrors.CodeNotFound, "update action", domainErrors.ErrActionNotFound),
			"action_id", id,
		)
	}
	return nil
}

// ListPending returns pending and failed actions, oldest first.
func (r *ActionRepository) ListPending(ctx context.Context) ([]*action.QueuedAction, error) {
	return r.list(ctx, "list pending actions",
		`WHERE status IN (?, ?)`, string(action.StatusPending), string(action.StatusFailed))
}

// ListByStatus returns actions with the given status, oldest first.
func (r *ActionRepository) ListByStatus(ctx context.Context, status action.Status) ([]*action.QueuedAction, error) {
	return r.list(ctx, "list actions by status", `WHERE status = ?`, string(status))
}

// ClearCompleted deletes completed actions.
func (r *ActionRepository) ClearCompleted(ctx context.Context) (int, error) {
	db, err := r.db()
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, `DELETE FROM offline_actions WHERE status = ?`, string(action.StatusCompleted))
	if err != nil {
		return 0, domainErrors.Storage("clear completed actions", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, domainErrors.Storage("clear completed actions", err)
	}
	return int(n), nil
}

// ResetFailed moves failed actions back to pending with a fresh retry budget.
func (r *ActionRepository) ResetFailed(ctx context.Context) (int, error) {
	db, err := r.db()
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE offline_actions
		SET status = ?, retry_count = 0, last_error = '', updated_at = ?
		WHERE status = ?
	`, string(action.StatusPending), r.now().UTC().UnixNano(), string(action.StatusFailed))
	if err != nil {
		return 0, domainErrors.Storage("reset failed actions", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, domainErrors.Storage("reset failed actions", err)
	}
	return int(n), nil
}

// Counts returns the number of actions per status.
func (r *ActionRepository) Counts(ctx context.Context) (action.Counts, error) {
	var counts action.Counts

	db, err := r.db()
	if err != nil {
		return counts, err
	}

	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM offline_actions GROUP BY status`)
	if err != nil {
		return counts, domainErrors.Storage("count actions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, domainErrors.Storage("count actions", err)
		}
		switch action.Status(status) {
		case action.StatusPending:
			counts.Pending = n
		case action.StatusFailed:
			counts.Failed = n
		case action.StatusCompleted:
			counts.Completed = n
		}
	}
	if err := rows.Err(); err != nil {
		return counts, domainErrors.Storage("count actions", err)
	}

	return counts, nil
}

// Close closes the underlying connection.
func (r *ActionRepository) Close() error {
	return r.conn.Close()
}

func (r *ActionRepository) db() (*sql.DB, error) {
	db, err := r.conn.DB()
	if err != nil {
		return nil, domainErrors.Storage("open action store", err)
	}
	return db, nil
}

func (r *ActionRepository) list(ctx context.Context, op, where string, args ...any) ([]*action.QueuedAction, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	// rowid breaks ties between actions created in the same nanosecond.
	rows, err := db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM offline_actions `+where+` ORDER BY created_at ASC, rowid ASC`,
		args...)
	if err != nil {
		return nil, domainErrors.Storage(op, err)
	}
	defer rows.Close()

	var actions []*action.QueuedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, domainErrors.Storage(op, err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domainErrors.Storage(op, err)
	}

	return actions, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAction(s scanner) (*action.QueuedAction, error) {
	var (
		a          action.QueuedAction
		actionType string
		data       string
		metadata   sql.NullString
		status     string
		createdAt  int64
		updatedAt  int64
	)

	err := s.Scan(&a.ID, &actionType, &data, &metadata, &status, &a.RetryCount, &a.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = action.Type(actionType)
	a.Data = []byte(data)
	if metadata.Valid {
		a.Metadata = []byte(metadata.String)
	}
	a.Status = action.Status(status)
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &a, nil
}

func nullableJSON(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
