// Package postgres implements the remote record store directly on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

// BackendName is the registry name of the PostgreSQL backend.
const BackendName = "postgres"

const defaultOperationTimeout = 15 * time.Second

// Ensure Backend implements ports.RemoteServicePort.
var _ ports.RemoteServicePort = (*Backend)(nil)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Backend writes records with SQL built from JSON payloads. Column types come
// from the target table through json_populate_record, so payloads carry plain
// JSON values.
type Backend struct {
	dsn     string
	timeout time.Duration
	openDB  sqlOpenFunc

	mu sync.Mutex
	db *sql.DB
}

// New creates a Backend. The connection is opened on first use and retried on
// later calls if that fails.
func New(dsn string, timeout time.Duration) (*Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "postgres backend requires a dsn", nil)
	}
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &Backend{
		dsn:     dsn,
		timeout: timeout,
		openDB:  sql.Open,
	}, nil
}

// Name implements ports.RemoteServicePort.
func (b *Backend) Name() string {
	return BackendName
}

// Insert implements ports.RemoteServicePort.
func (b *Backend) Insert(ctx context.Context, table string, record json.RawMessage) error {
	query, args, err := buildInsert(table, record)
	if err != nil {
		return err
	}
	return b.exec(ctx, query, args...)
}

// Update implements ports.RemoteServicePort.
func (b *Backend) Update(ctx context.Context, table string, match ports.Match, patch json.RawMessage) error {
	query, args, err := buildUpdate(table, match, patch)
	if err != nil {
		return err
	}
	return b.exec(ctx, query, args...)
}

// Delete implements ports.RemoteServicePort.
func (b *Backend) Delete(ctx context.Context, table string, match ports.Match) error {
	query, args, err := buildDelete(table, match)
	if err != nil {
		return err
	}
	return b.exec(ctx, query, args...)
}

// Call implements ports.RemoteServicePort by invoking a function taking one jsonb argument.
func (b *Backend) Call(ctx context.Context, procedure string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	query := fmt.Sprintf("SELECT %s($1::jsonb)", quoteIdentifier(procedure))
	return b.exec(ctx, query, string(payload))
}

// Ping implements ports.RemoteServicePort.
func (b *Backend) Ping(ctx context.Context) error {
	db, err := b.ensureReady(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return db.PingContext(ctx)
}

// Close closes the connection pool if it was opened.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *Backend) exec(ctx context.Context, query string, args ...any) error {
	db, err := b.ensureReady(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	_, err = db.ExecContext(ctx, query, args...)
	return err
}

func (b *Backend) ensureReady(ctx context.Context) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return b.db, nil
	}

	db, err := b.openDB("postgres", b.dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	b.db = db
	return db, nil
}

// buildInsert inserts only the columns present in record so table defaults still apply.
func buildInsert(table string, record json.RawMessage) (string, []any, error) {
	columns, err := objectKeys(record)
	if err != nil {
		return "", nil, err
	}
	if len(columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdentifier(table)), nil, nil
	}

	cols := quoteList(columns)
	query := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM json_populate_record(NULL::%s, $1::json)",
		quoteIdentifier(table), cols, cols, quoteIdentifier(table))
	return query, []any{string(record)}, nil
}

func buildUpdate(table string, match ports.Match, patch json.RawMessage) (string, []any, error) {
	columns, err := objectKeys(patch)
	if err != nil {
		return "", nil, err
	}
	if len(columns) == 0 {
		return "", nil, domainErrors.NewError(domainErrors.CodeValidation, "update patch is empty", domainErrors.ErrInvalidPayload)
	}

	where, whereArgs, err := buildWhere(match, 2)
	if err != nil {
		return "", nil, err
	}

	cols := quoteList(columns)
	query := fmt.Sprintf("UPDATE %s SET (%s) = (SELECT %s FROM json_populate_record(NULL::%s, $1::json)) WHERE %s",
		quoteIdentifier(table), cols, cols, quoteIdentifier(table), where)
	return query, append([]any{string(patch)}, whereArgs...), nil
}

func buildDelete(table string, match ports.Match) (string, []any, error) {
	where, args, err := buildWhere(match, 1)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdentifier(table), where), args, nil
}

// buildWhere renders match as AND-ed equality predicates with placeholders starting at $first.
func buildWhere(match ports.Match, first int) (string, []any, error) {
	if len(match) == 0 {
		return "", nil, domainErrors.NewError(domainErrors.CodeValidation, "match filter is empty", domainErrors.ErrInvalidAction)
	}

	keys := make([]string, 0, len(match))
	for k := range match {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	predicates := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		v := match[k]
		if v == nil {
			predicates = append(predicates, quoteIdentifier(k)+" IS NULL")
			continue
		}
		args = append(args, v)
		predicates = append(predicates, fmt.Sprintf("%s = $%d", quoteIdentifier(k), first+len(args)-1))
	}
	return strings.Join(predicates, " AND "), args, nil
}

func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeValidation, "payload must be a JSON object", domainErrors.ErrInvalidPayload)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func quoteList(identifiers []string) string {
	quoted := make([]string, len(identifiers))
	for i, id := range identifiers {
		quoted[i] = quoteIdentifier(id)
	}
	return strings.Join(quoted, ", ")
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
