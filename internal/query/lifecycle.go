package query

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/ragserve/internal/rag"
	"github.com/mohammad-safakhou/ragserve/internal/store"
	"github.com/mohammad-safakhou/ragserve/models"
)

// ErrQueryTooLong is returned when the submitted text exceeds the
// configured character limit. No record is created in that case.
var ErrQueryTooLong = errors.New("query is too long")

// AnswerPipeline is what the manager needs from the RAG pipeline.
type AnswerPipeline interface {
	Answer(ctx context.Context, queryText string) (models.QueryResponse, error)
}

// Dispatcher hands a pending record to the asynchronous worker path.
type Dispatcher interface {
	Dispatch(ctx context.Context, q models.Query) error
}

// Manager owns the query record lifecycle: creation, sync/async
// execution, completion and lookups.
type Manager struct {
	Store    *store.Store
	Pipeline AnswerPipeline
	// Dispatcher toggles async mode; nil means submissions are answered
	// inline before returning.
	Dispatcher Dispatcher
	MaxChars   int
	Logger     *log.Logger
}

// Submit validates and creates a query record. In async mode the pending
// record is persisted and dispatched, and returned immediately; in sync
// mode the pipeline runs inline and the completed record is returned.
func (m *Manager) Submit(ctx context.Context, queryText, userID string) (models.Query, error) {
	maxChars := m.MaxChars
	if maxChars <= 0 {
		maxChars = 2000
	}
	if len([]rune(queryText)) > maxChars {
		return models.Query{}, fmt.Errorf("%w: max character limit is %d", ErrQueryTooLong, maxChars)
	}

	q := models.NewQuery(queryText, userID)

	if m.Dispatcher != nil {
		if err := m.Store.SaveQuery(ctx, q); err != nil {
			m.logf("save pending query %s: %v", q.QueryID, err)
			return models.Query{}, err
		}
		if err := m.Dispatcher.Dispatch(ctx, q); err != nil {
			m.logf("dispatch query %s: %v", q.QueryID, err)
			return models.Query{}, fmt.Errorf("dispatch query %s: %w", q.QueryID, err)
		}
		m.logf("query %s dispatched for async completion", q.QueryID)
		return q, nil
	}

	m.logf("no dispatcher configured, answering query %s synchronously", q.QueryID)
	return m.finish(ctx, q)
}

// Complete re-runs the pipeline for an already-persisted record and
// overwrites it by query_id. The worker calls this; it must produce the
// same result the synchronous branch would have.
func (m *Manager) Complete(ctx context.Context, q models.Query) (models.Query, error) {
	return m.finish(ctx, q)
}

func (m *Manager) finish(ctx context.Context, q models.Query) (models.Query, error) {
	resp, err := m.Pipeline.Answer(ctx, q.QueryText)
	if err != nil {
		return models.Query{}, err
	}
	q.AnswerText = &resp.ResponseText
	q.Sources = resp.Sources
	q.IsComplete = true
	if err := m.Store.SaveQuery(ctx, q); err != nil {
		m.logf("save completed query %s: %v", q.QueryID, err)
		return models.Query{}, err
	}
	return q, nil
}

// Get returns the record for queryID, or models.ErrQueryNotFound when it
// does not exist. Store failures propagate unchanged so callers can tell
// the two apart.
func (m *Manager) Get(ctx context.Context, queryID string) (models.Query, error) {
	q, found, err := m.Store.GetQuery(ctx, queryID)
	if err != nil {
		m.logf("get query %s: %v", queryID, err)
		return models.Query{}, err
	}
	if !found {
		return models.Query{}, models.ErrQueryNotFound
	}
	return q, nil
}

// List returns up to limit records owned by userID, newest first.
func (m *Manager) List(ctx context.Context, userID string, limit int) ([]models.Query, error) {
	items, err := m.Store.ListQueriesByUser(ctx, userID, limit)
	if err != nil {
		m.logf("list queries for %s: %v", userID, err)
		return nil, err
	}
	return items, nil
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}

var _ AnswerPipeline = (*rag.Pipeline)(nil)
