package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/infra/db/memory"
	"thought-pipeline/internal/infra/logging"
	"thought-pipeline/internal/infra/worker"
	"thought-pipeline/internal/usecase"
)

// --- Fake collaborators

type fakeSTT struct {
	calls        atomic.Int32
	TranscribeFn func(ctx context.Context, audioRef string) (adapter.Transcription, error)
}

func (f *fakeSTT) Transcribe(ctx context.Context, audioRef string) (adapter.Transcription, error) {
	f.calls.Add(1)
	return f.TranscribeFn(ctx, audioRef)
}

type fakeClassifier struct {
	calls        atomic.Int32
	mu           sync.Mutex
	lastCtx      adapter.ClassificationContext
	CategorizeFn func(ctx context.Context, content string) (adapter.Classification, error)
}

func (f *fakeClassifier) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastCtx = cctx
	f.mu.Unlock()
	if f.CategorizeFn == nil {
		return adapter.Classification{Category: model.NewCategory("note", ""), Tags: []string{"misc"}, Confidence: 0.6}, nil
	}
	return f.CategorizeFn(ctx, content)
}

func (f *fakeClassifier) context() adapter.ClassificationContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCtx
}

type fakeDetector struct {
	calls    atomic.Int32
	DetectFn func(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error)
}

func (f *fakeDetector) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	f.calls.Add(1)
	return f.DetectFn(ctx, content, ref)
}

// detectWith returns a detector that always reports an event with confidence conf.
func detectWith(conf float64) *fakeDetector {
	return &fakeDetector{DetectFn: func(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
		return model.CalendarEventSuggestion{HasEvent: true, NaturalLanguageText: content, Confidence: conf, Reason: "test"}, nil
	}}
}

type fakeCreator struct {
	calls    atomic.Int32
	CreateFn func(ctx context.Context, creds model.CalendarCredentials, calendarID, timezone, text string) (model.CreatedEvent, error)
}

func (f *fakeCreator) CreateFromNaturalLanguage(ctx context.Context, creds model.CalendarCredentials, calendarID, timezone, text string) (model.CreatedEvent, error) {
	f.calls.Add(1)
	if f.CreateFn == nil {
		starts := time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)
		return model.CreatedEvent{EventID: "evt-1", EventLink: "https://calendar.example/evt-1", StartsAt: &starts}, nil
	}
	return f.CreateFn(ctx, creds, calendarID, timezone, text)
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f.allow, f.err
}

// recordingSink keeps every notification it is handed.
type recordingSink struct {
	mu   sync.Mutex
	sent []adapter.Notification
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(ctx context.Context, n adapter.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) ofType(t adapter.EventType) []adapter.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []adapter.Notification
	for _, n := range s.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// flakyThoughts fails the first n SetEvent calls.
type flakyThoughts struct {
	repository.ThoughtRepository
	failures atomic.Int32
	setCalls atomic.Int32
}

func (f *flakyThoughts) SetEvent(ctx context.Context, tx repository.Tx, thoughtID string, ev model.EventRef, reminderAt *time.Time) error {
	f.setCalls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("db blip")
	}
	return f.ThoughtRepository.SetEvent(ctx, tx, thoughtID, ev, reminderAt)
}

// --- Pipeline harness

type pipeline struct {
	store    *memory.Store
	thoughts *memory.ThoughtRepo
	settings *memory.SettingsRepo
	tm       *memory.TxManager
	status   *usecase.StatusUseCase
	queue    *worker.Queue
	sink     *recordingSink
	notifier *usecase.NotificationUseCase

	// calendarThoughts replaces the thought repository seen by the calendar stage.
	calendarThoughts repository.ThoughtRepository

	stt        *fakeSTT
	classifier *fakeClassifier
	detector   *fakeDetector
	creator    *fakeCreator
	limiter    usecase.RateLimiter

	capture *usecase.CaptureUseCase
}

func newPipeline(maxAttempts int) *pipeline {
	store := memory.NewStore()
	items := memory.NewProcessingItemRepo(store)
	status := usecase.NewStatusUseCase(items, maxAttempts, usecase.Backoff{}, logging.Nop())
	queue := worker.NewQueue(status, worker.QueueConfig{PollInterval: 10 * time.Millisecond}, logging.Nop())
	sink := &recordingSink{}
	notifier := usecase.NewNotificationUseCase(logging.Nop(), sink)
	queue.OnTerminalFailure(notifier.StageFailed)

	p := &pipeline{
		store:      store,
		thoughts:   memory.NewThoughtRepo(store),
		settings:   memory.NewSettingsRepo(store),
		tm:         memory.NewTxManager(store),
		status:     status,
		queue:      queue,
		sink:       sink,
		notifier:   notifier,
		stt:        &fakeSTT{},
		classifier: &fakeClassifier{},
		detector:   detectWith(0.9),
		creator:    &fakeCreator{},
	}
	p.capture = usecase.NewCaptureUseCase(p.thoughts, items, p.tm, queue, logging.Nop())
	return p
}

// start registers every stage and runs them until the returned stop func is called.
func (p *pipeline) start(t *testing.T) (stop func()) {
	t.Helper()
	m := worker.NewManager(p.queue, p.status, logging.Nop())
	require.NoError(t, m.Register(model.StageTranscribe, 2,
		usecase.NewTranscribeUseCase(p.stt, p.thoughts, p.tm, p.queue, p.notifier, logging.Nop())))
	require.NoError(t, m.Register(model.StageEnrich, 3,
		usecase.NewEnrichUseCase(p.classifier, p.thoughts, p.settings, p.tm, p.queue, p.notifier, usecase.EnrichConfig{}, logging.Nop())))
	var calThoughts repository.ThoughtRepository = p.thoughts
	if p.calendarThoughts != nil {
		calThoughts = p.calendarThoughts
	}
	require.NoError(t, m.Register(model.StageCalendar, 1,
		usecase.NewCalendarUseCase(p.detector, p.creator, p.settings, calThoughts, p.tm, p.notifier, p.limiter, usecase.CalendarConfig{}, logging.Nop())))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("pipeline did not stop")
		}
	}
}

func (p *pipeline) enableCalendar(ownerID string) {
	p.settings.Put(&model.UserIntegrationSettings{
		OwnerID:                    ownerID,
		CalendarIntegrationEnabled: true,
		AutoCalendarEventsEnabled:  true,
		Timezone:                   "Europe/Berlin",
		DefaultCalendarID:          "primary",
		Credentials:                model.CalendarCredentials{Provider: "google", EncryptedRefreshToken: "sealed"},
	})
}

// seedThought stores a thought without admitting any stage.
func (p *pipeline) seedThought(t *testing.T, id, ownerID, content string) {
	t.Helper()
	th, err := model.NewThought(id, ownerID, content, nil)
	require.NoError(t, err)
	require.NoError(t, p.thoughts.Save(context.Background(), repository.NoTX, th))
}

// waitItem blocks until the (thought, stage) item is terminal and returns it.
func (p *pipeline) waitItem(t *testing.T, thoughtID string, stage model.Stage) *model.ProcessingItem {
	t.Helper()
	var found *model.ProcessingItem
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		items, err := p.status.ListByThought(context.Background(), thoughtID)
		require.NoError(t, err)
		for _, it := range items {
			if it.Stage == stage && it.Status.Terminal() {
				found = it
			}
		}
		if found != nil {
			return found
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no terminal %s item for thought %s", stage, thoughtID)
	return nil
}

func (p *pipeline) itemsOf(t *testing.T, thoughtID string, stage model.Stage) []*model.ProcessingItem {
	t.Helper()
	items, err := p.status.ListByThought(context.Background(), thoughtID)
	require.NoError(t, err)
	var out []*model.ProcessingItem
	for _, it := range items {
		if it.Stage == stage {
			out = append(out, it)
		}
	}
	return out
}

func (p *pipeline) thought(t *testing.T, id string) *model.Thought {
	t.Helper()
	th, err := p.thoughts.FindByID(context.Background(), repository.NoTX, id)
	require.NoError(t, err)
	return th
}
