package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/ragserve/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func strPtr(s string) *string { return &s }

func TestSaveQueryPending(t *testing.T) {
	st, mock := newMockStore(t)

	q := models.Query{
		QueryID:    "abc123",
		UserID:     "nobody",
		CreateTime: 1700000000,
		TTL:        1700000000 + 15552000,
		QueryText:  "what is up?",
		Sources:    []*string{},
	}

	mock.ExpectExec(`INSERT INTO queries`).
		WithArgs("abc123", "nobody", int64(1700000000), int64(1715552000), "what is up?", nil, []byte(`[]`), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveQuery(context.Background(), q); err != nil {
		t.Fatalf("SaveQuery: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveQueryComplete(t *testing.T) {
	st, mock := newMockStore(t)

	q := models.Query{
		QueryID:    "abc123",
		UserID:     "u1",
		CreateTime: 1700000000,
		TTL:        1715552000,
		QueryText:  "q",
		AnswerText: strPtr("the answer"),
		Sources:    []*string{strPtr("a"), nil},
		IsComplete: true,
	}

	mock.ExpectExec(`INSERT INTO queries`).
		WithArgs("abc123", "u1", int64(1700000000), int64(1715552000), "q", "the answer", []byte(`["a",null]`), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveQuery(context.Background(), q); err != nil {
		t.Fatalf("SaveQuery: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetQueryRoundTrip(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{"query_id", "user_id", "create_time", "ttl", "query_text", "answer_text", "sources", "is_complete"}
	mock.ExpectQuery(`SELECT query_id, user_id, create_time, ttl, query_text, answer_text, sources, is_complete\s+FROM queries WHERE query_id = \$1`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("abc123", "u1", int64(1700000000), int64(1715552000), "q", "the answer", []byte(`["a","b",null]`), true))

	q, found, err := st.GetQuery(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if !found {
		t.Fatalf("expected record to be found")
	}
	if q.QueryID != "abc123" || q.UserID != "u1" || !q.IsComplete {
		t.Fatalf("unexpected record: %+v", q)
	}
	if q.AnswerText == nil || *q.AnswerText != "the answer" {
		t.Fatalf("answer text not restored: %v", q.AnswerText)
	}
	if len(q.Sources) != 3 || *q.Sources[0] != "a" || *q.Sources[1] != "b" || q.Sources[2] != nil {
		t.Fatalf("sources not restored: %v", q.Sources)
	}
}

func TestGetQueryAbsentFieldsDefault(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{"query_id", "user_id", "create_time", "ttl", "query_text", "answer_text", "sources", "is_complete"}
	mock.ExpectQuery(`FROM queries WHERE query_id = \$1`).
		WithArgs("pending1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("pending1", "nobody", int64(1), int64(2), "q", nil, []byte(`[]`), false))

	q, found, err := st.GetQuery(context.Background(), "pending1")
	if err != nil || !found {
		t.Fatalf("GetQuery: found=%v err=%v", found, err)
	}
	if q.AnswerText != nil {
		t.Fatalf("expected absent answer_text, got %v", *q.AnswerText)
	}
	if q.Sources == nil || len(q.Sources) != 0 {
		t.Fatalf("expected empty sources, got %v", q.Sources)
	}
	if q.IsComplete {
		t.Fatalf("expected pending record")
	}
}

func TestGetQueryNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{"query_id", "user_id", "create_time", "ttl", "query_text", "answer_text", "sources", "is_complete"}
	mock.ExpectQuery(`FROM queries WHERE query_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	_, found, err := st.GetQuery(context.Background(), "missing")
	if err != nil {
		t.Fatalf("absence must not be an error: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

func TestListQueriesByUserOrderAndLimit(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{"query_id", "user_id", "create_time", "ttl", "query_text", "answer_text", "sources", "is_complete"}
	mock.ExpectQuery(`FROM queries WHERE user_id = \$1\s+ORDER BY create_time DESC\s+LIMIT \$2`).
		WithArgs("u1", 25).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("newer", "u1", int64(200), int64(300), "q2", nil, []byte(`[]`), false).
			AddRow("older", "u1", int64(100), int64(200), "q1", "a1", []byte(`["s"]`), true))

	items, err := st.ListQueriesByUser(context.Background(), "u1", 25)
	if err != nil {
		t.Fatalf("ListQueriesByUser: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 records, got %d", len(items))
	}
	if items[0].QueryID != "newer" || items[1].QueryID != "older" {
		t.Fatalf("records out of order: %v, %v", items[0].QueryID, items[1].QueryID)
	}
}

func TestPurgeExpired(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Unix(1700000000, 0)
	mock.ExpectExec(`DELETE FROM queries WHERE ttl < \$1`).
		WithArgs(int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := st.PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 purged, got %d", n)
	}
}

func TestSearchChunks(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{"id", "source_id", "content", "distance"}
	mock.ExpectQuery(`ORDER BY embedding <=> \$1::vector\s+LIMIT \$2`).
		WithArgs("[0.5,-1.25]", 3).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", "a", "chunk one", 0.1).
			AddRow("c2", nil, "chunk two", 0.4))

	hits, err := st.SearchChunks(context.Background(), []float32{0.5, -1.25}, 3)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].SourceID == nil || *hits[0].SourceID != "a" {
		t.Fatalf("unexpected first source: %v", hits[0].SourceID)
	}
	if hits[1].SourceID != nil {
		t.Fatalf("expected nil source for second hit")
	}
	if hits[0].Distance >= hits[1].Distance {
		t.Fatalf("hits not ranked by distance")
	}
}

func TestEncodeVectorLiteral(t *testing.T) {
	got, err := encodeVectorLiteral([]float32{1, 0.5, -2})
	if err != nil {
		t.Fatalf("encodeVectorLiteral: %v", err)
	}
	if got != "[1,0.5,-2]" {
		t.Fatalf("unexpected literal: %q", got)
	}
	if _, err := encodeVectorLiteral(nil); err == nil {
		t.Fatalf("expected error for empty vector")
	}
}
