package docindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS indexes (
	index_id        TEXT PRIMARY KEY,
	description     TEXT NOT NULL DEFAULT '',
	embedding_model TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	doc_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	index_id  TEXT NOT NULL,
	content   TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}',
	embedding BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS documents_by_index ON documents(index_id, doc_id);
`

// DB is the sqlite file that holds every named index.
type DB struct {
	db *sqlx.DB
}

type IndexInfo struct {
	ID             string `db:"index_id" json:"id"`
	Description    string `db:"description" json:"description"`
	EmbeddingModel string `db:"embedding_model" json:"embedding_model"`
	CreatedAt      string `db:"created_at" json:"created_at"`
	Documents      int    `db:"documents" json:"documents"`
}

func OpenDB(path string) (*DB, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// EnsureIndex registers id if it is new. An existing index keeps its original
// embedding model; a mismatch is reported so vectors from two models never mix.
func (d *DB) EnsureIndex(ctx context.Context, id, description, embeddingModel string) error {
	info, err := d.Index(ctx, id)
	switch {
	case errors.Is(err, ErrIndexNotFound):
		_, err = d.db.ExecContext(ctx,
			`INSERT INTO indexes (index_id, description, embedding_model, created_at) VALUES (?, ?, ?, ?)`,
			id, description, embeddingModel, time.Now().UTC().Format(time.RFC3339))
		return err
	case err != nil:
		return err
	}
	if info.EmbeddingModel != "" && embeddingModel != "" && info.EmbeddingModel != embeddingModel {
		return fmt.Errorf("index %s was built with %s, not %s", id, info.EmbeddingModel, embeddingModel)
	}
	if description != "" && description != info.Description {
		_, err = d.db.ExecContext(ctx, `UPDATE indexes SET description = ? WHERE index_id = ?`, description, id)
	}
	return err
}

func (d *DB) Index(ctx context.Context, id string) (IndexInfo, error) {
	var info IndexInfo
	err := d.db.GetContext(ctx, &info, `
		SELECT i.index_id, i.description, i.embedding_model, i.created_at,
		       (SELECT COUNT(*) FROM documents d WHERE d.index_id = i.index_id) AS documents
		FROM indexes i WHERE i.index_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexInfo{}, fmt.Errorf("%w: %s", ErrIndexNotFound, id)
	}
	return info, err
}

func (d *DB) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	var out []IndexInfo
	err := d.db.SelectContext(ctx, &out, `
		SELECT i.index_id, i.description, i.embedding_model, i.created_at,
		       (SELECT COUNT(*) FROM documents d WHERE d.index_id = i.index_id) AS documents
		FROM indexes i ORDER BY i.index_id`)
	return out, err
}

type documentRow struct {
	DocID     int64  `db:"doc_id"`
	Content   string `db:"content"`
	Metadata  string `db:"metadata"`
	Embedding []byte `db:"embedding"`
}

func (d *DB) loadDocuments(ctx context.Context, indexID string) ([]documentRow, error) {
	var rows []documentRow
	err := d.db.SelectContext(ctx, &rows,
		`SELECT doc_id, content, metadata, embedding FROM documents WHERE index_id = ? ORDER BY doc_id`, indexID)
	return rows, err
}

func (d *DB) insertDocuments(ctx context.Context, indexID string, rows []documentRow) ([]int64, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO documents (index_id, content, metadata, embedding) VALUES (?, ?, ?, ?)`,
			indexID, r.Content, r.Metadata, r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("insert document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}
