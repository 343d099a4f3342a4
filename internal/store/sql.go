package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/inspectbot/internal/domain"
	"github.com/ashureev/inspectbot/internal/shared"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour used by SQLStore.
type Dialect string

const (
	// DialectSQLite uses modernc.org/sqlite.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses the pgx stdlib driver.
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Repository on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	retry   shared.RetryPolicy
}

// New opens a repository for the given driver name.
func New(driver, dbPath, databaseURL string) (Repository, error) {
	switch Dialect(driver) {
	case DialectSQLite, "":
		return NewSQLite(dbPath)
	case DialectPostgres:
		return NewPostgres(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets the ops API read while the bot writes.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DialectSQLite)
}

// NewPostgres creates a new PostgreSQL-backed repository.
func NewPostgres(databaseURL string) (*SQLStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DialectPostgres)
}

func newSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: dialect, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	var stmts []string
	switch s.dialect {
	case DialectPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS inspections (
				id BIGSERIAL PRIMARY KEY,
				chat_id TEXT NOT NULL,
				created_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS items (
				id BIGSERIAL PRIMARY KEY,
				inspection_id BIGINT NOT NULL REFERENCES inspections(id),
				idx INTEGER NOT NULL,
				text TEXT NOT NULL,
				answer TEXT,
				comment TEXT,
				photo_path TEXT,
				UNIQUE (inspection_id, idx)
			)`,
		}
	default:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS inspections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				chat_id TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				inspection_id INTEGER NOT NULL REFERENCES inspections(id),
				idx INTEGER NOT NULL,
				text TEXT NOT NULL,
				answer TEXT,
				comment TEXT,
				photo_path TEXT,
				UNIQUE (inspection_id, idx)
			)`,
		}
	}
	stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_inspections_chat ON inspections(chat_id, id)`)

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateInspection inserts an inspection and its items in one transaction.
func (s *SQLStore) CreateInspection(ctx context.Context, sessionID string, questions []string) (int64, error) {
	var id int64
	err := shared.RetryOnConflict(ctx, s.retry, "create inspection", func() error {
		var err error
		id, err = s.createInspectionOnce(ctx, sessionID, questions)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) createInspectionOnce(ctx context.Context, sessionID string, questions []string) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("Failed to roll back inspection insert", "error", rbErr)
			}
		}
	}()

	row := tx.QueryRowContext(ctx,
		s.rebind(`INSERT INTO inspections (chat_id, created_at) VALUES (?, ?) RETURNING id`),
		sessionID, time.Now().UTC().Unix())
	if err = row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert inspection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO items (inspection_id, idx, text) VALUES (?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare item insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Debug("Failed to close item insert statement", "error", closeErr)
		}
	}()

	for i, text := range questions {
		if _, err = stmt.ExecContext(ctx, id, i, text); err != nil {
			return 0, fmt.Errorf("insert item %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit inspection: %w", err)
	}
	return id, nil
}

// UpdateItem writes the set fields of update to one item.
func (s *SQLStore) UpdateItem(ctx context.Context, inspectionID int64, index int, update domain.ItemUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	if update.Answer != nil {
		sets = append(sets, "answer = ?")
		args = append(args, string(*update.Answer))
	}
	if update.Comment != nil {
		sets = append(sets, "comment = ?")
		args = append(args, *update.Comment)
	}
	if update.PhotoRef != nil {
		sets = append(sets, "photo_path = ?")
		args = append(args, *update.PhotoRef)
	}
	args = append(args, inspectionID, index)
	query := s.rebind(`UPDATE items SET ` + strings.Join(sets, ", ") + ` WHERE inspection_id = ? AND idx = ?`)

	return shared.RetryOnConflict(ctx, s.retry, "update item", func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Warn("UpdateItem affected 0 rows", "inspection_id", inspectionID, "index", index)
		}
		return nil
	})
}

// GetItems returns the items of an inspection ordered by index.
func (s *SQLStore) GetItems(ctx context.Context, inspectionID int64) ([]domain.Item, error) {
	query := s.rebind(`
		SELECT idx, text, answer, comment, photo_path
		FROM items WHERE inspection_id = ? ORDER BY idx`)

	rows, err := s.db.QueryContext(ctx, query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close item rows", "error", closeErr)
		}
	}()

	items := make([]domain.Item, 0, 8)
	for rows.Next() {
		var item domain.Item
		var answer, comment, photo sql.NullString
		if err := rows.Scan(&item.Index, &item.Question, &answer, &comment, &photo); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		item.InspectionID = inspectionID
		if answer.Valid {
			a := domain.Answer(answer.String)
			item.Answer = &a
		}
		if comment.Valid {
			item.Comment = &comment.String
		}
		if photo.Valid {
			item.PhotoRef = &photo.String
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// LatestInspectionFor returns the newest inspection ID for a session.
func (s *SQLStore) LatestInspectionFor(ctx context.Context, sessionID string) (int64, bool, error) {
	query := s.rebind(`SELECT id FROM inspections WHERE chat_id = ? ORDER BY id DESC LIMIT 1`)

	var id int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query latest inspection: %w", err)
	}
	return id, true, nil
}

// IsComplete reports whether every item of the inspection has an answer.
func (s *SQLStore) IsComplete(ctx context.Context, inspectionID int64) (domain.Completeness, error) {
	items, err := s.GetItems(ctx, inspectionID)
	if err != nil {
		return domain.Completeness{}, err
	}
	return domain.CompletenessOf(items), nil
}

// GetInspection retrieves an inspection by ID.
func (s *SQLStore) GetInspection(ctx context.Context, inspectionID int64) (*domain.Inspection, error) {
	query := s.rebind(`SELECT id, chat_id, created_at FROM inspections WHERE id = ?`)

	var ins domain.Inspection
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, inspectionID).Scan(&ins.ID, &ins.SessionID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan inspection row: %w", err)
	}
	ins.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ins, nil
}

// ListInspections returns the newest inspections for a session.
func (s *SQLStore) ListInspections(ctx context.Context, sessionID string, limit int) ([]domain.Inspection, error) {
	if limit <= 0 {
		limit = 20
	}
	query := s.rebind(`
		SELECT id, chat_id, created_at
		FROM inspections WHERE chat_id = ? ORDER BY id DESC LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query inspections: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close inspection rows", "error", closeErr)
		}
	}()

	var out []domain.Inspection
	for rows.Next() {
		var ins domain.Inspection
		var createdAt int64
		if err := rows.Scan(&ins.ID, &ins.SessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan inspection row: %w", err)
		}
		ins.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inspections: %w", err)
	}
	return out, nil
}
