package eventstore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	es, err := Open(ctx, config.EventStoreConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.BeginSession(ctx, Session{ID: "s", InterviewID: "i"}); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.Record(ctx, "s", 0, EventQuestionAsked, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "s", 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected nothing kept, got %v %v", events, err)
	}
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})

	if err := es.BeginSession(ctx, Session{ID: "session-123", InterviewID: "iv-1", UserID: "u-1", Attempt: 2}); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	payload := map[string]any{"text": "I ship small changes"}
	if err := es.Record(ctx, "session-123", 1, EventTranscriptFinal, payload); err != nil {
		t.Fatalf("record: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "session-123", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventTranscriptFinal || events[0].QuestionIndex != 1 {
		t.Fatalf("unexpected event %+v", events[0])
	}
	var got map[string]string
	if err := json.Unmarshal(events[0].Payload, &got); err != nil || got["text"] != "I ship small changes" {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}

	sessions, err := es.ListSessions(ctx, "iv-1", 5)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Attempt != 2 || sessions[0].UserID != "u-1" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}

func TestListSessionsFiltersByInterview(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent"})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"iv-a", "iv-b", "iv-a"} {
		sess := Session{ID: id + "-" + string(rune('0'+i)), InterviewID: id, Attempt: 1, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := es.BeginSession(ctx, sess); err != nil {
			t.Fatalf("begin session: %v", err)
		}
	}
	sessions, err := es.ListSessions(ctx, "iv-a", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "iv-a-2" {
		t.Fatalf("expected newest iv-a session first, got %+v", sessions)
	}
	all, err := es.ListSessions(ctx, "", 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d (%v)", len(all), err)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(ctx, Session{ID: "old-session", InterviewID: "iv"}); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.Record(ctx, "old-session", 0, EventQuestionAsked, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(ctx, Session{ID: "new-session", InterviewID: "iv"}); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	sessions, err := es.ListSessions(ctx, "iv", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "new-session" {
		t.Fatalf("expected only new session to survive, got %+v", sessions)
	}
}
