package models

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueryNotFound is returned when a query record does not exist.
var ErrQueryNotFound = errors.New("query not found")

// RetentionWindow is how long a query record is kept before it becomes
// eligible for expiry (6 months, expressed in whole seconds).
const RetentionWindow = 6 * 30 * 24 * time.Hour

// Query is the persisted record of a submitted question and, once the
// pipeline has run, its generated answer.
type Query struct {
	QueryID    string    `json:"query_id"`
	UserID     string    `json:"user_id"`
	CreateTime int64     `json:"create_time"`
	TTL        int64     `json:"ttl"`
	QueryText  string    `json:"query_text"`
	AnswerText *string   `json:"answer_text,omitempty"`
	Sources    []*string `json:"sources"`
	IsComplete bool      `json:"is_complete"`
}

// NewQuery builds a pending query record. user_id falls back to "nobody"
// when the caller did not identify themselves.
func NewQuery(queryText, userID string) Query {
	if userID == "" {
		userID = "nobody"
	}
	now := time.Now().Unix()
	return Query{
		QueryID:    newQueryID(),
		UserID:     userID,
		CreateTime: now,
		TTL:        now + int64(RetentionWindow/time.Second),
		QueryText:  queryText,
		Sources:    []*string{},
	}
}

// newQueryID returns a random 128-bit identifier, hex encoded (no dashes).
func newQueryID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// QueryResponse is the ephemeral result of one pipeline run. Its fields
// are copied onto a Query record; it is never stored directly.
type QueryResponse struct {
	QueryText    string    `json:"query_text"`
	ResponseText string    `json:"response_text"`
	Sources      []*string `json:"sources"`
}
