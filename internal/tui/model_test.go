package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/loqalabs/loqa-interview/internal/api"
	"github.com/loqalabs/loqa-interview/internal/session"
)

type fakeController struct {
	snap    session.Snapshot
	entries []session.Entry
	updates chan session.Snapshot
	calls   []string
	replays int
	err     error
}

func newFakeController() *fakeController {
	return &fakeController{
		snap: session.Snapshot{
			State:         session.StateIdle,
			QuestionCount: 3,
			Question:      "Tell me about yourself.",
			Attempt:       1,
			MaxAttempts:   4,
		},
		updates: make(chan session.Snapshot, 1),
	}
}

func (f *fakeController) call(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Start(context.Context) error         { return f.call("start") }
func (f *fakeController) Stop(context.Context) error          { return f.call("stop") }
func (f *fakeController) Submit(context.Context) error        { return f.call("submit") }
func (f *fakeController) Retake(context.Context) error        { return f.call("retake") }
func (f *fakeController) RefreshReport(context.Context) error { return f.call("refresh") }
func (f *fakeController) ReplayQuestion()                     { f.replays++ }
func (f *fakeController) Updates() <-chan session.Snapshot    { return f.updates }
func (f *fakeController) Snapshot() session.Snapshot          { return f.snap }
func (f *fakeController) Entries() []session.Entry            { return f.entries }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeysDispatchActions(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(context.Background(), ctrl, "Backend Engineer")

	keys := []tea.KeyMsg{runes("s"), runes("x"), {Type: tea.KeyEnter}, runes("r"), runes("f")}
	for _, key := range keys {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("expected command for key %q", key.String())
		}
		msg := cmd()
		if _, ok := msg.(actionDoneMsg); !ok {
			t.Fatalf("expected actionDoneMsg, got %T", msg)
		}
		m.Update(msg)
	}
	want := []string{"start", "stop", "submit", "retake", "refresh"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected calls %v", ctrl.calls)
	}
}

func TestReplayKey(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(context.Background(), ctrl, "x")
	_, cmd := m.Update(runes("p"))
	if cmd != nil {
		t.Fatal("expected replay to run inline")
	}
	if ctrl.replays != 1 {
		t.Fatalf("expected one replay, got %d", ctrl.replays)
	}
}

func TestIdleViewShowsUpcomingQuestion(t *testing.T) {
	m := NewModel(context.Background(), newFakeController(), "x")
	out := m.View()
	if !strings.Contains(out, "Q1  Tell me about yourself.") || !strings.Contains(out, "s start") {
		t.Fatalf("expected upcoming question and start hint: %s", out)
	}
}

func TestQuitKey(t *testing.T) {
	m := NewModel(context.Background(), newFakeController(), "x")
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestActionErrorShown(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = session.ErrValidation
	m := NewModel(context.Background(), ctrl, "x")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(cmd())
	if !strings.Contains(m.View(), "missing transcript or audio") {
		t.Fatalf("expected validation error in view: %s", m.View())
	}
}

func TestSnapshotUpdatesView(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(context.Background(), ctrl, "Backend Engineer")

	ctrl.entries = []session.Entry{
		{Seq: 1, Sender: session.SenderQuestion, Text: "Tell me about yourself.", Final: true},
		{Seq: 2, Sender: session.SenderUser, Text: "I build systems", Final: false},
	}
	snap := ctrl.snap
	snap.State = session.StateRecording
	snap.Answering = true
	snap.Seconds = 75
	ctrl.updates <- snap

	msg := m.waitForUpdate()()
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("expected model to keep listening for updates")
	}
	out := m.View()
	for _, want := range []string{"Question 1/3", "Attempt 1/4", "01:15", "REC", "Q1  Tell me about yourself.", "I build systems"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q: %s", want, out)
		}
	}
}

func TestUpdatesClosed(t *testing.T) {
	ctrl := newFakeController()
	close(ctrl.updates)
	m := NewModel(context.Background(), ctrl, "x")
	if _, ok := m.waitForUpdate()().(updatesClosedMsg); !ok {
		t.Fatal("expected updatesClosedMsg")
	}
}

func TestReportViewReplacesTranscript(t *testing.T) {
	ctrl := newFakeController()
	score := 81.5
	ctrl.snap.State = session.StateReportReady
	ctrl.snap.Report = &api.Report{Attempt: 2, FinalScore: &score}
	m := NewModel(context.Background(), ctrl, "x")
	out := m.View()
	if !strings.Contains(out, "Final score") || !strings.Contains(out, "81.5") {
		t.Fatalf("expected report in view: %s", out)
	}
	if !strings.Contains(out, "r retake") {
		t.Fatalf("expected retake hint: %s", out)
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[int]string{0: "00:00", 9: "00:09", 61: "01:01", 600: "10:00", -3: "00:00"}
	for in, want := range cases {
		if got := formatClock(in); got != want {
			t.Fatalf("formatClock(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestActionErrorClearedOnNextAction(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = errors.New("boom")
	m := NewModel(context.Background(), ctrl, "x")
	_, cmd := m.Update(runes("s"))
	m.Update(cmd())
	if m.errMsg == "" {
		t.Fatal("expected error message")
	}
	ctrl.err = nil
	_, cmd = m.Update(runes("x"))
	if m.errMsg != "" {
		t.Fatalf("expected error cleared, got %q", m.errMsg)
	}
	m.Update(cmd())
}
