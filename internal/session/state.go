package session

import (
	"errors"

	"github.com/loqalabs/loqa-interview/internal/api"
)

// State is the controller's position in the per-question flow.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
	StateSubmitting
	StateAwaitingFinalResult
	StateReportReady
	StateMaxAttemptsReached
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingFinalResult:
		return "awaiting_final_result"
	case StateReportReady:
		return "report_ready"
	case StateMaxAttemptsReached:
		return "max_attempts_reached"
	default:
		return "unknown"
	}
}

var (
	ErrValidation   = errors.New("missing transcript or audio")
	ErrBusy         = errors.New("a request is already in progress")
	ErrMaxAttempts  = errors.New("max attempts reached")
	ErrRecording    = errors.New("stop recording first")
	ErrInvalidState = errors.New("action not available in current state")
	ErrSuperseded   = errors.New("result discarded after interview was reset")
)

type Sender string

const (
	SenderQuestion Sender = "question"
	SenderUser     Sender = "user"
)

// Entry is one line of the interview transcript.
type Entry struct {
	Seq           int
	Sender        Sender
	Text          string
	Final         bool
	QuestionIndex int
}

type Question struct {
	ID       string
	Text     string
	AudioURL string
}

// QuestionsFromAPI maps interview details to controller questions.
func QuestionsFromAPI(details api.InterviewDetails) []Question {
	out := make([]Question, 0, len(details.Questions))
	for _, q := range details.Questions {
		out = append(out, Question{ID: q.ID, Text: q.Question, AudioURL: q.AudioURL})
	}
	return out
}

// Snapshot is a consistent copy of the controller state for observers.
type Snapshot struct {
	State         State
	QuestionIndex int
	QuestionCount int
	Question      string
	Seconds       int
	Attempt       int
	MaxAttempts   int
	Transcript    string
	HasAudio      bool
	Answering     bool
	Submitting    bool
	Retaking      bool
	LastError     string
	Report        *api.Report
}
