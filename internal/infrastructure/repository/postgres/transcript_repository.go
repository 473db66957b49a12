package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

type TranscriptRepository struct {
	db *sql.DB
}

func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *TranscriptRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS transcripts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	source_text TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	indexed_chunks INTEGER NOT NULL DEFAULT 0,
	index_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_status ON transcripts(status);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *TranscriptRepository) Create(ctx context.Context, t *domain.Transcript) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO transcripts (
	id, title, language, source_text, storage_path, status, error_message, indexed_chunks, index_progress, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		t.ID, t.Title, t.Language, t.Text, t.StoragePath, string(t.Status), t.Error,
		t.IndexedChunks, t.IndexProgress, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (r *TranscriptRepository) GetByID(ctx context.Context, id string) (*domain.Transcript, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, language, source_text, storage_path, status, error_message, indexed_chunks, index_progress, created_at, updated_at
FROM transcripts
WHERE id = $1
`, id)

	var t domain.Transcript
	var status string

	err := row.Scan(
		&t.ID, &t.Title, &t.Language, &t.Text, &t.StoragePath, &status, &t.Error,
		&t.IndexedChunks, &t.IndexProgress, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTranscriptNotFound, "fetch transcript", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	t.Status = domain.TranscriptStatus(status)
	return &t, nil
}

func (r *TranscriptRepository) UpdateStatus(ctx context.Context, id string, status domain.TranscriptStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE transcripts
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update transcript status: %w", err)
	}
	return nil
}

// UpdateIndexState persists indexing progress. Progress only moves
// forward and a zero chunk count never overwrites a recorded one, so
// interleaved progress writes cannot regress the row.
func (r *TranscriptRepository) UpdateIndexState(ctx context.Context, id string, progress float64, indexedChunks int) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE transcripts
SET index_progress = GREATEST(index_progress, $2),
	indexed_chunks = GREATEST(indexed_chunks, $3),
	updated_at = $4
WHERE id = $1
`, id, progress, indexedChunks, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update transcript index state: %w", err)
	}
	return nil
}
