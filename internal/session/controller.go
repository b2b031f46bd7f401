package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interview/internal/api"
	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/pronunciation"
	"github.com/loqalabs/loqa-interview/internal/stt"
	"github.com/loqalabs/loqa-interview/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Capture records one answer. *audio.Recorder satisfies it.
type Capture interface {
	Start(ctx context.Context) error
	Live() <-chan []byte
	Stop(ctx context.Context) ([]byte, error)
	Abort()
}

// Backend is the subset of the interview API the controller drives.
type Backend interface {
	SubmitAssessment(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error)
	GetResult(ctx context.Context, userID, interviewID string) (api.Report, error)
	Retake(ctx context.Context, userID, interviewID string) (api.Report, error)
}

// Journal receives the local practice timeline. *eventstore.Store satisfies it.
type Journal interface {
	BeginSession(ctx context.Context, sess eventstore.Session) error
	Record(ctx context.Context, sessionID string, questionIndex int, eventType string, payload any) error
}

type Options struct {
	UserID      string
	InterviewID string
	Questions   []Question
	Attempt     int
	MaxAttempts int
	Tick        time.Duration
	StopTimeout time.Duration

	Capture    Capture
	Recognizer stt.Recognizer
	Assessor   pronunciation.Assessor
	Backend    Backend
	Journal    Journal
	Speaker    tts.Speaker
	Logger     *slog.Logger
}

// Controller runs one interview: it records answers question by question,
// scores and submits them, then fetches the final report.
type Controller struct {
	opts    Options
	log     *slog.Logger
	tracer  trace.Tracer
	metrics controllerMetrics

	mu         sync.Mutex
	state      State
	index      int
	attempt    int
	entries    []Entry
	seq        int
	transcript string
	interim    string
	wav        []byte
	seconds    int
	lastErr    error
	report     *api.Report
	inflight   bool
	retaking   bool
	token      uint64
	rec        *recording
	journalID  string
	closed     bool
	updates    chan Snapshot

	// cancels question playback
	promptCancel context.CancelFunc

	// open while Start is attaching the microphone and recognizer
	starting    chan struct{}
	stopPending bool
}

type recording struct {
	cancel   context.CancelFunc
	session  stt.Session
	stopReq  chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (r *recording) requestStop() {
	r.stopOnce.Do(func() { close(r.stopReq) })
}

type controllerMetrics struct {
	recordings  metric.Int64Counter
	submissions metric.Int64Counter
	failures    metric.Int64Counter
	retakes     metric.Int64Counter
}

func newControllerMetrics(log *slog.Logger) controllerMetrics {
	meter := otel.Meter("github.com/loqalabs/loqa-interview/internal/session")
	var m controllerMetrics
	var err error
	if m.recordings, err = meter.Int64Counter("interview.recordings", metric.WithDescription("Answers recorded")); err != nil {
		log.Warn("failed to create metric", slog.String("name", "interview.recordings"), slogError(err))
	}
	if m.submissions, err = meter.Int64Counter("interview.submissions", metric.WithDescription("Answers submitted")); err != nil {
		log.Warn("failed to create metric", slog.String("name", "interview.submissions"), slogError(err))
	}
	if m.failures, err = meter.Int64Counter("interview.failures", metric.WithDescription("Failed assessments, submissions and report fetches")); err != nil {
		log.Warn("failed to create metric", slog.String("name", "interview.failures"), slogError(err))
	}
	if m.retakes, err = meter.Int64Counter("interview.retakes", metric.WithDescription("Interview retakes")); err != nil {
		log.Warn("failed to create metric", slog.String("name", "interview.retakes"), slogError(err))
	}
	return m
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func New(opts Options) (*Controller, error) {
	if len(opts.Questions) == 0 {
		return nil, errors.New("interview has no questions")
	}
	if opts.Capture == nil || opts.Recognizer == nil || opts.Assessor == nil || opts.Backend == nil {
		return nil, errors.New("capture, recognizer, assessor and backend are required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.Attempt <= 0 {
		opts.Attempt = 1
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	log = log.With(slog.String("component", "session"), slog.String("interview_id", opts.InterviewID))

	c := &Controller{
		opts:    opts,
		log:     log,
		tracer:  otel.Tracer("github.com/loqalabs/loqa-interview/internal/session"),
		metrics: newControllerMetrics(log),
		attempt: opts.Attempt,
		updates: make(chan Snapshot, 1),
	}
	c.beginJournal(context.Background())
	c.mu.Lock()
	c.announceLocked(0)
	c.mu.Unlock()
	return c, nil
}

// Updates delivers the latest snapshot after every change. Intermediate
// snapshots are dropped when the reader falls behind.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Entries returns the transcript up to the current question. User entries
// carry the running transcript, so only the latest one per question is shown.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	latest := make(map[int]int)
	for _, e := range c.entries {
		if e.Sender == SenderUser {
			latest[e.QuestionIndex] = e.Seq
		}
	}
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.QuestionIndex > c.index {
			continue
		}
		if e.Sender == SenderUser && e.Seq != latest[e.QuestionIndex] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Start begins recording an answer to the current question. It is a no-op
// while already recording.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateRecording:
		c.mu.Unlock()
		return nil
	case StateSubmitting, StateAwaitingFinalResult:
		c.mu.Unlock()
		return ErrBusy
	case StateReportReady, StateMaxAttemptsReached:
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.closed {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.stopPromptLocked()
	c.state = StateRecording
	c.transcript, c.interim, c.wav = "", "", nil
	c.seconds = 0
	c.lastErr = nil
	c.dropUserEntryLocked(c.index)
	if !c.hasQuestionEntryLocked(c.index) {
		c.appendLocked(Entry{Sender: SenderQuestion, Text: c.opts.Questions[c.index].Text, Final: true, QuestionIndex: c.index})
	}
	index, token := c.index, c.token
	starting := make(chan struct{})
	c.starting, c.stopPending = starting, false
	c.publishLocked()
	c.mu.Unlock()
	defer close(starting)

	c.record(index, eventstore.EventQuestionAsked, map[string]string{"question": c.opts.Questions[index].Text})

	recCtx, cancel := context.WithCancel(context.Background())
	if err := c.opts.Capture.Start(recCtx); err != nil {
		cancel()
		return c.failStart(token, starting, fmt.Errorf("start capture: %w", err))
	}
	sess, err := c.opts.Recognizer.Start(recCtx, c.opts.Capture.Live())
	if err != nil {
		c.opts.Capture.Abort()
		cancel()
		return c.failStart(token, starting, fmt.Errorf("start recognizer: %w", err))
	}

	r := &recording{
		cancel:  cancel,
		session: sess,
		stopReq: make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	stopNow := c.endStartLocked(starting)
	if c.token != token || c.state != StateRecording || c.closed {
		c.mu.Unlock()
		c.opts.Capture.Abort()
		_ = sess.Stop(ctx)
		cancel()
		return ErrSuperseded
	}
	c.rec = r
	c.mu.Unlock()

	add(ctx, c.metrics.recordings)
	c.log.Info("recording started", slog.Int("question", index), slog.String("recognizer_session", sess.ID()))
	go c.watch(r, index)
	if stopNow {
		r.requestStop()
	}
	return nil
}

// endStartLocked detaches a finished Start and reports whether Stop was
// called while it ran.
func (c *Controller) endStartLocked(starting chan struct{}) bool {
	if c.starting != starting {
		return false
	}
	stop := c.stopPending
	c.starting, c.stopPending = nil, false
	return stop
}

func (c *Controller) failStart(token uint64, starting chan struct{}, err error) error {
	c.log.Warn("recording failed to start", slogError(err))
	c.mu.Lock()
	c.endStartLocked(starting)
	if c.token == token && c.state == StateRecording {
		c.state = StateIdle
		c.lastErr = err
		c.publishLocked()
	}
	c.mu.Unlock()
	return err
}

// Stop ends the current recording and keeps the transcript and audio for
// submission. It returns once the microphone and recognizer are released.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	r := c.rec
	if r == nil && c.starting != nil {
		// Start is still opening the microphone; it stops as soon as it is done
		c.stopPending = true
		starting := c.starting
		c.mu.Unlock()
		select {
		case <-starting:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		r = c.rec
	}
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	r.requestStop()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) watch(r *recording, index int) {
	defer close(r.done)
	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()

	events := r.session.Events()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.rec == r {
				c.seconds++
				c.publishLocked()
			}
			c.mu.Unlock()
		case ev, ok := <-events:
			if !ok {
				c.finish(r, index, nil)
				return
			}
			c.apply(r, index, ev)
			if ev.Kind == stt.EventEnd {
				c.log.Debug("recognizer ended", slog.String("reason", ev.Reason))
				c.finish(r, index, nil)
				return
			}
		case <-r.stopReq:
			c.finish(r, index, events)
			return
		}
	}
}

func (c *Controller) apply(r *recording, index int, ev stt.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != r {
		return
	}
	switch ev.Kind {
	case stt.EventInterim:
		c.interim = ev.Transcript
		c.setUserEntryLocked(index, ev.Transcript, false)
	case stt.EventFinal:
		c.transcript = ev.Transcript
		c.interim = ""
		c.setUserEntryLocked(index, ev.Transcript, true)
	case stt.EventEnd:
		if ev.Transcript != "" && ev.Transcript != c.transcript {
			c.transcript = ev.Transcript
			c.setUserEntryLocked(index, ev.Transcript, true)
		}
		c.interim = ""
	}
	c.publishLocked()
}

// finish releases the microphone and the recognizer. When events is non-nil
// the recognizer is still live and its remaining events are drained.
func (c *Controller) finish(r *recording, index int, events <-chan stt.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.StopTimeout)
	defer cancel()
	defer r.cancel()

	wav, captureErr := c.opts.Capture.Stop(ctx)
	if captureErr != nil {
		c.log.Warn("capture stop failed", slogError(captureErr))
	}

	if events != nil {
		stopped := make(chan error, 1)
		go func() { stopped <- r.session.Stop(ctx) }()
		for ev := range events {
			c.apply(r, index, ev)
		}
		if err := <-stopped; err != nil {
			c.log.Warn("recognizer stop failed", slogError(err))
		}
	} else {
		_ = r.session.Stop(ctx)
	}

	c.mu.Lock()
	if c.rec != r {
		c.mu.Unlock()
		return
	}
	c.rec = nil
	c.state = StateStopped
	c.wav = wav
	if c.transcript == "" && c.interim != "" {
		// recognizer gave up before a final segment; keep what was heard
		c.transcript = c.interim
		c.setUserEntryLocked(index, c.interim, true)
	}
	c.interim = ""
	if captureErr != nil {
		c.lastErr = captureErr
	}
	transcript, seconds := c.transcript, c.seconds
	c.publishLocked()
	c.mu.Unlock()

	c.log.Info("recording stopped", slog.Int("question", index), slog.Int("seconds", seconds), slog.Int("wav_bytes", len(wav)))
	c.record(index, eventstore.EventRecordingStopped, map[string]int{"seconds": seconds, "wav_bytes": len(wav)})
	if transcript != "" {
		c.record(index, eventstore.EventTranscriptFinal, map[string]string{"text": transcript})
	}
}

// Submit scores the stopped answer and sends it to the interview API. After
// the last question it fetches the final report.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}
	switch c.state {
	case StateRecording:
		c.mu.Unlock()
		return ErrRecording
	case StateIdle, StateStopped:
	default:
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.transcript == "" || len(c.wav) <= audio.WAVHeaderSize {
		c.lastErr = ErrValidation
		c.publishLocked()
		c.mu.Unlock()
		return ErrValidation
	}
	c.inflight = true
	c.state = StateSubmitting
	c.lastErr = nil
	token := c.token
	index := c.index
	question := c.opts.Questions[index]
	transcript, wav := c.transcript, c.wav
	c.publishLocked()
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "session.submit", trace.WithAttributes(
		attribute.String("interview.id", c.opts.InterviewID),
		attribute.Int("question.index", index),
	))
	defer span.End()

	agg, err := c.assess(ctx, wav, transcript)
	if err == nil {
		c.record(index, eventstore.EventAssessment, agg)
		_, err = c.opts.Backend.SubmitAssessment(ctx, api.SubmitRequest{
			UserID:      c.opts.UserID,
			InterviewID: c.opts.InterviewID,
			QuestionID:  question.ID,
			Data:        api.AnswerFromAggregate(agg),
		})
		if err != nil {
			err = fmt.Errorf("submit answer: %w", err)
		}
	}

	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.inflight = false
		c.state = StateStopped
		c.lastErr = err
		c.publishLocked()
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		add(ctx, c.metrics.failures, attribute.String("stage", "submit"))
		c.record(index, eventstore.EventSubmitFailed, map[string]string{"error": err.Error()})
		c.log.WarnContext(ctx, "submission failed", slog.Int("question", index), slogError(err))
		return err
	}
	add(ctx, c.metrics.submissions)
	c.record(index, eventstore.EventSubmitted, map[string]string{"question_id": question.ID})

	if index < len(c.opts.Questions)-1 {
		c.inflight = false
		c.index++
		c.state = StateIdle
		c.transcript, c.interim, c.wav = "", "", nil
		c.seconds = 0
		c.announceLocked(c.index)
		c.publishLocked()
		c.mu.Unlock()
		c.log.InfoContext(ctx, "answer submitted", slog.Int("question", index))
		return nil
	}
	// inflight stays set so RefreshReport cannot race the first fetch
	c.state = StateAwaitingFinalResult
	c.publishLocked()
	c.mu.Unlock()
	c.log.InfoContext(ctx, "last answer submitted, fetching report")
	return c.fetchReport(ctx, token)
}

func (c *Controller) assess(ctx context.Context, wav []byte, transcript string) (pronunciation.Aggregate, error) {
	ctx, span := c.tracer.Start(ctx, "session.assess")
	defer span.End()
	sample, err := c.opts.Assessor.Assess(ctx, wav, transcript)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pronunciation.Aggregate{}, fmt.Errorf("assess answer: %w", err)
	}
	agg := pronunciation.AggregateSamples([]pronunciation.Sample{sample})
	span.SetAttributes(attribute.Float64("pron_score", agg.Scores.PronScore), attribute.Int("words", agg.WordCount))
	return agg, nil
}

// RefreshReport retries fetching the final report after a failed fetch.
func (c *Controller) RefreshReport(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateAwaitingFinalResult {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inflight = true
	c.lastErr = nil
	token := c.token
	c.publishLocked()
	c.mu.Unlock()
	return c.fetchReport(ctx, token)
}

// fetchReport runs with inflight already set by the caller.
func (c *Controller) fetchReport(ctx context.Context, token uint64) error {
	ctx, span := c.tracer.Start(ctx, "session.report")
	defer span.End()

	report, err := c.opts.Backend.GetResult(ctx, c.opts.UserID, c.opts.InterviewID)

	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.inflight = false
	if err != nil {
		err = fmt.Errorf("fetch report: %w", err)
		c.lastErr = err
		c.publishLocked()
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		add(ctx, c.metrics.failures, attribute.String("stage", "report"))
		c.log.WarnContext(ctx, "report fetch failed", slogError(err))
		return err
	}
	if report.Attempt > 0 {
		c.attempt = report.Attempt
	}
	c.report = &report
	c.state = StateReportReady
	index := c.index
	c.publishLocked()
	c.mu.Unlock()

	c.record(index, eventstore.EventReportReady, report)
	return nil
}

// Retake starts the interview over when attempts remain. At the attempt
// limit it moves to MaxAttemptsReached without calling the API.
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReportReady:
	case StateMaxAttemptsReached:
		c.mu.Unlock()
		return ErrMaxAttempts
	default:
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.retaking {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.attempt >= c.opts.MaxAttempts {
		c.state = StateMaxAttemptsReached
		c.lastErr = ErrMaxAttempts
		c.publishLocked()
		c.mu.Unlock()
		c.log.Info("retake blocked", slog.Int("attempt", c.attempt), slog.Int("max_attempts", c.opts.MaxAttempts))
		return ErrMaxAttempts
	}
	c.retaking = true
	c.lastErr = nil
	c.publishLocked()
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "session.retake")
	defer span.End()
	report, err := c.opts.Backend.Retake(ctx, c.opts.UserID, c.opts.InterviewID)

	c.mu.Lock()
	c.retaking = false
	if err != nil {
		c.lastErr = err
		c.publishLocked()
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		add(ctx, c.metrics.failures, attribute.String("stage", "retake"))
		return fmt.Errorf("retake: %w", err)
	}
	previous := c.attempt
	c.token++
	c.state = StateIdle
	c.index = 0
	c.entries = nil
	c.seq = 0
	c.transcript, c.interim, c.wav = "", "", nil
	c.seconds = 0
	c.report = nil
	c.inflight = false
	if report.Attempt > previous {
		c.attempt = report.Attempt
	} else {
		c.attempt = previous + 1
	}
	attempt := c.attempt
	c.announceLocked(0)
	c.publishLocked()
	c.mu.Unlock()

	add(ctx, c.metrics.retakes)
	c.record(0, eventstore.EventRetake, map[string]int{"attempt": attempt})
	c.beginJournal(ctx)
	c.log.InfoContext(ctx, "interview retaken", slog.Int("attempt", attempt))
	return nil
}

// Close releases an active recording and closes Updates.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopPromptLocked()
	r := c.rec
	c.mu.Unlock()

	if r != nil {
		r.requestStop()
		<-r.done
	}

	c.mu.Lock()
	close(c.updates)
	c.mu.Unlock()
}

// ReplayQuestion reads the current question again. It does nothing while
// recording or after the last answer.
func (c *Controller) ReplayQuestion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle, StateStopped:
		c.announceLocked(c.index)
	}
}

// announceLocked plays a question in the background, cutting off any
// earlier playback.
func (c *Controller) announceLocked(index int) {
	if c.opts.Speaker == nil || c.closed {
		return
	}
	c.stopPromptLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.promptCancel = cancel
	q := c.opts.Questions[index]
	go func() {
		defer cancel()
		if err := c.opts.Speaker.Speak(ctx, tts.Prompt{Text: q.Text, AudioURL: q.AudioURL}); err != nil && ctx.Err() == nil {
			c.log.Warn("question playback failed", slog.Int("question", index), slogError(err))
		}
	}()
}

// stopPromptLocked keeps question audio out of the microphone.
func (c *Controller) stopPromptLocked() {
	if c.promptCancel != nil {
		c.promptCancel()
		c.promptCancel = nil
	}
}

func (c *Controller) beginJournal(ctx context.Context) {
	if c.opts.Journal == nil {
		return
	}
	id := uuid.NewString()
	c.mu.Lock()
	attempt := c.attempt
	c.journalID = id
	c.mu.Unlock()
	err := c.opts.Journal.BeginSession(ctx, eventstore.Session{
		ID:          id,
		InterviewID: c.opts.InterviewID,
		UserID:      c.opts.UserID,
		Attempt:     attempt,
	})
	if err != nil {
		c.log.Warn("journal session failed", slogError(err))
	}
}

func (c *Controller) record(index int, eventType string, payload any) {
	if c.opts.Journal == nil {
		return
	}
	c.mu.Lock()
	id := c.journalID
	c.mu.Unlock()
	if err := c.opts.Journal.Record(context.Background(), id, index, eventType, payload); err != nil {
		c.log.Warn("journal write failed", slog.String("type", eventType), slogError(err))
	}
}

func (c *Controller) appendLocked(e Entry) {
	c.seq++
	e.Seq = c.seq
	c.entries = append(c.entries, e)
}

// setUserEntryLocked appends the user's running transcript for a question.
// Earlier user entries stay in place and are hidden by Entries.
func (c *Controller) setUserEntryLocked(index int, text string, final bool) {
	if text == "" {
		return
	}
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.Sender == SenderUser && e.QuestionIndex == index {
			if e.Text == text && e.Final == final {
				return
			}
			break
		}
	}
	c.appendLocked(Entry{Sender: SenderUser, Text: text, Final: final, QuestionIndex: index})
}

func (c *Controller) dropUserEntryLocked(index int) {
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.Sender == SenderUser && e.QuestionIndex == index {
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
}

func (c *Controller) hasQuestionEntryLocked(index int) bool {
	for _, e := range c.entries {
		if e.Sender == SenderQuestion && e.QuestionIndex == index {
			return true
		}
	}
	return false
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:         c.state,
		QuestionIndex: c.index,
		QuestionCount: len(c.opts.Questions),
		Question:      c.opts.Questions[c.index].Text,
		Seconds:       c.seconds,
		Attempt:       c.attempt,
		MaxAttempts:   c.opts.MaxAttempts,
		Transcript:    joinTranscript(c.transcript, c.interim),
		HasAudio:      len(c.wav) > audio.WAVHeaderSize,
		Answering:     c.state == StateRecording,
		Submitting:    c.state == StateSubmitting || c.state == StateAwaitingFinalResult,
		Retaking:      c.retaking,
		Report:        c.report,
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	return snap
}

func joinTranscript(final, interim string) string {
	if interim != "" {
		return interim
	}
	return final
}

// publishLocked replaces any unread snapshot with the current one.
func (c *Controller) publishLocked() {
	if c.closed {
		return
	}
	snap := c.snapshotLocked()
	select {
	case c.updates <- snap:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap:
	default:
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
