package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/mohammad-safakhou/ragserve/internal/query"
	"github.com/mohammad-safakhou/ragserve/internal/queue/streams"
	"github.com/mohammad-safakhou/ragserve/models"
)

type fakeCompleter struct {
	completed []models.Query
	err       error
}

func (f *fakeCompleter) Complete(ctx context.Context, q models.Query) (models.Query, error) {
	if f.err != nil {
		return models.Query{}, f.err
	}
	q.IsComplete = true
	f.completed = append(f.completed, q)
	return q, nil
}

func submittedEnvelope(t *testing.T, q models.Query) streams.Envelope {
	t.Helper()
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal query: %v", err)
	}
	return streams.Envelope{EventID: "ev1", EventType: query.EventQuerySubmitted, Data: data}
}

func testLogger() *log.Logger { return log.New(os.Stdout, "[TEST] ", 0) }

func TestHandleSubmittedCompletesRecord(t *testing.T) {
	completer := &fakeCompleter{}
	p := &Processor{Logger: testLogger(), Completer: completer, Stream: "query.submitted"}

	q := models.NewQuery("what is up?", "u1")
	msg := streams.Message{ID: "1-0", Envelope: submittedEnvelope(t, q)}

	if err := p.handleSubmitted(context.Background(), msg); err != nil {
		t.Fatalf("handleSubmitted: %v", err)
	}
	if len(completer.completed) != 1 {
		t.Fatalf("expected one completion, got %d", len(completer.completed))
	}
	if completer.completed[0].QueryID != q.QueryID {
		t.Fatalf("wrong record completed: %q", completer.completed[0].QueryID)
	}
}

func TestHandleSubmittedCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("pipeline down")}
	p := &Processor{Logger: testLogger(), Completer: completer, Stream: "query.submitted"}

	msg := streams.Message{ID: "1-0", Envelope: submittedEnvelope(t, models.NewQuery("q", "u"))}
	if err := p.handleSubmitted(context.Background(), msg); err == nil {
		t.Fatalf("expected completion failure to surface")
	}
}

func TestDecodeSubmittedRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name string
		env  streams.Envelope
	}{
		{"wrong event type", streams.Envelope{EventType: "something.else", Data: []byte(`{}`)}},
		{"missing query_id", streams.Envelope{EventType: query.EventQuerySubmitted, Data: []byte(`{"query_text":"q"}`)}},
		{"missing query_text", streams.Envelope{EventType: query.EventQuerySubmitted, Data: []byte(`{"query_id":"abc"}`)}},
		{"not json", streams.Envelope{EventType: query.EventQuerySubmitted, Data: []byte(`not json`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeSubmitted(tc.env); err == nil {
				t.Fatalf("expected decode error")
			}
		})
	}
}

func TestDecodeSubmittedAcceptsFullRecord(t *testing.T) {
	q := models.NewQuery("what is up?", "u1")
	data, _ := json.Marshal(q)
	env := streams.Envelope{EventType: query.EventQuerySubmitted, Data: data}

	decoded, err := decodeSubmitted(env)
	if err != nil {
		t.Fatalf("decodeSubmitted: %v", err)
	}
	if decoded.QueryID != q.QueryID || decoded.QueryText != q.QueryText {
		t.Fatalf("payload mangled: %+v", decoded)
	}
	if decoded.IsComplete {
		t.Fatalf("submitted payload must be pending")
	}
}
