package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/ragserve/models"
)

// Store wraps the Postgres connection shared by the API and the worker.
type Store struct {
	DB *sql.DB
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// SaveQuery upserts a query record by query_id, overwriting all fields.
// A nil answer_text is written as SQL NULL (sparse write).
func (s *Store) SaveQuery(ctx context.Context, q models.Query) error {
	sources, err := json.Marshal(q.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	var answer sql.NullString
	if q.AnswerText != nil {
		answer = sql.NullString{String: *q.AnswerText, Valid: true}
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO queries (query_id, user_id, create_time, ttl, query_text, answer_text, sources, is_complete)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (query_id) DO UPDATE SET
  user_id = EXCLUDED.user_id,
  create_time = EXCLUDED.create_time,
  ttl = EXCLUDED.ttl,
  query_text = EXCLUDED.query_text,
  answer_text = EXCLUDED.answer_text,
  sources = EXCLUDED.sources,
  is_complete = EXCLUDED.is_complete;
`, q.QueryID, q.UserID, q.CreateTime, q.TTL, q.QueryText, answer, sources, q.IsComplete)
	if err != nil {
		return fmt.Errorf("save query %s: %w", q.QueryID, err)
	}
	return nil
}

// GetQuery looks up one record by query_id. The bool reports whether the
// record exists; an error means the store itself failed, which callers
// must not conflate with absence.
func (s *Store) GetQuery(ctx context.Context, queryID string) (models.Query, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT query_id, user_id, create_time, ttl, query_text, answer_text, sources, is_complete
FROM queries WHERE query_id = $1
`, queryID)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return models.Query{}, false, nil
	}
	if err != nil {
		return models.Query{}, false, fmt.Errorf("get query %s: %w", queryID, err)
	}
	return q, true, nil
}

// ListQueriesByUser returns up to limit records for the user, newest
// first. Errors propagate so callers can tell an empty history from an
// unreachable store.
func (s *Store) ListQueriesByUser(ctx context.Context, userID string, limit int) ([]models.Query, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT query_id, user_id, create_time, ttl, query_text, answer_text, sources, is_complete
FROM queries WHERE user_id = $1
ORDER BY create_time DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list queries for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// PurgeExpired deletes records whose ttl has passed and reports how many
// were removed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM queries WHERE ttl < $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired queries: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuery(row rowScanner) (models.Query, error) {
	var (
		q        models.Query
		answer   sql.NullString
		srcBytes []byte
	)
	if err := row.Scan(&q.QueryID, &q.UserID, &q.CreateTime, &q.TTL, &q.QueryText, &answer, &srcBytes, &q.IsComplete); err != nil {
		return models.Query{}, err
	}
	if answer.Valid {
		val := answer.String
		q.AnswerText = &val
	}
	q.Sources = []*string{}
	if len(srcBytes) > 0 {
		if err := json.Unmarshal(srcBytes, &q.Sources); err != nil {
			return models.Query{}, fmt.Errorf("decode sources for %s: %w", q.QueryID, err)
		}
	}
	return q, nil
}

// ChunkRecord is one embedded document chunk in the vector store.
type ChunkRecord struct {
	ID       string
	SourceID *string
	Content  string
	Vector   []float32
}

// ChunkSearchResult is a ranked similarity-search hit.
type ChunkSearchResult struct {
	ID       string
	SourceID *string
	Content  string
	Distance float64
}

// UpsertChunk stores or replaces an embedded chunk.
func (s *Store) UpsertChunk(ctx context.Context, rec ChunkRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("chunk id required")
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("embedding vector required")
	}
	vectorLiteral, err := encodeVectorLiteral(rec.Vector)
	if err != nil {
		return err
	}
	var source sql.NullString
	if rec.SourceID != nil {
		source = sql.NullString{String: *rec.SourceID, Valid: true}
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO document_chunks (id, source_id, content, embedding, created_at)
VALUES ($1,$2,$3,$4::vector,NOW())
ON CONFLICT (id) DO UPDATE SET
  source_id = EXCLUDED.source_id,
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  created_at = NOW();
`, rec.ID, source, rec.Content, vectorLiteral)
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", rec.ID, err)
	}
	return nil
}

// SearchChunks returns the topK chunks closest to the supplied vector,
// ranked by cosine distance.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, topK int) ([]ChunkSearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 3
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, source_id, content, embedding <=> $1::vector AS distance
FROM document_chunks
ORDER BY embedding <=> $1::vector
LIMIT $2
`, vecLiteral, topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []ChunkSearchResult
	for rows.Next() {
		var (
			res    ChunkSearchResult
			source sql.NullString
		)
		if err := rows.Scan(&res.ID, &source, &res.Content, &res.Distance); err != nil {
			return nil, err
		}
		if source.Valid {
			val := source.String
			res.SourceID = &val
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
