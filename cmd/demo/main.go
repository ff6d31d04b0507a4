// Command demo runs the whole pipeline in-process over the in-memory store with
// deterministic collaborators, then prints what happened to each thought.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"thought-pipeline/internal/config"
	"thought-pipeline/internal/domain/model"
	aiAdapters "thought-pipeline/internal/infra/adapters/ai"
	calAdapters "thought-pipeline/internal/infra/adapters/calendar"
	tele "thought-pipeline/internal/infra/adapters/telegram"
	"thought-pipeline/internal/infra/db/memory"
	"thought-pipeline/internal/infra/logging"
	"thought-pipeline/internal/infra/worker"
	"thought-pipeline/internal/usecase"
)

const owner = "demo-owner"

func main() {
	verbose := flag.Bool("v", false, "log every worker step")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(config.LogConfig{Level: level, Format: "console"}, true, os.Stderr)

	store := memory.NewStore()
	items := memory.NewProcessingItemRepo(store)
	thoughts := memory.NewThoughtRepo(store)
	settings := memory.NewSettingsRepo(store)
	tm := memory.NewTxManager(store)

	settings.Put(&model.UserIntegrationSettings{
		OwnerID:                    owner,
		CalendarIntegrationEnabled: true,
		AutoCalendarEventsEnabled:  true,
		Timezone:                   "Europe/Berlin",
		Credentials:                model.CalendarCredentials{Provider: "google", EncryptedRefreshToken: "demo"},
		TelegramChatID:             1,
	})

	notifier := usecase.NewNotificationUseCase(logger, tele.NewSink(tele.NewNoopBot(logger), settings))
	ai := aiAdapters.NewNoopAIAdapter()
	status := usecase.NewStatusUseCase(items, 3, usecase.Backoff{}, logger)
	queue := worker.NewQueue(status, worker.QueueConfig{PollInterval: 20 * time.Millisecond}, logger)
	queue.OnTerminalFailure(notifier.StageFailed)

	manager := worker.NewManager(queue, status, logger)
	must(manager.Register(model.StageTranscribe, 1, usecase.NewTranscribeUseCase(ai, thoughts, tm, queue, notifier, logger)))
	must(manager.Register(model.StageEnrich, 2, usecase.NewEnrichUseCase(ai, thoughts, settings, tm, queue, notifier, usecase.EnrichConfig{}, logger)))
	must(manager.Register(model.StageCalendar, 1, usecase.NewCalendarUseCase(ai, calAdapters.NewNoopCreator(logger), settings, thoughts, tm, notifier, nil, usecase.CalendarConfig{}, logger)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	capture := usecase.NewCaptureUseCase(thoughts, items, tm, queue, logger)
	voice := "s3://notes/call_the_dentist_tomorrow_at_9.m4a"
	inputs := []usecase.CaptureInput{
		{OwnerID: owner, Content: "idea: a bike rack that folds into the wall"},
		{OwnerID: owner, Content: "team meeting tomorrow at 10am"},
		{OwnerID: owner, AudioRef: &voice},
	}
	var ids []string
	for _, in := range inputs {
		t, _, err := capture.Capture(ctx, in)
		must(err)
		ids = append(ids, t.ID)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !settled(ctx, status, ids) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	must(<-done)

	for _, id := range ids {
		t, err := thoughts.FindByID(context.Background(), nil, id)
		must(err)
		fmt.Printf("thought %s\n  text:     %q\n  category: %s tags=%v\n", t.ID, t.Text(), t.Category.Main, t.Tags)
		if t.Event != nil {
			fmt.Printf("  event:    %s\n", t.Event.EventLink)
		}
		for _, tr := range store.History(id) {
			fmt.Printf("  %-10s %-10s -> %s\n", tr.Stage, tr.From, tr.To)
		}
	}
	sum, err := status.Summary(context.Background(), owner)
	must(err)
	fmt.Printf("summary: pending=%d processing=%d completed=%d failed=%d\n", sum.Pending, sum.Processing, sum.Completed, sum.Failed)
}

// settled reports whether every item of every thought is terminal.
func settled(ctx context.Context, status *usecase.StatusUseCase, ids []string) bool {
	for _, id := range ids {
		items, err := status.ListByThought(ctx, id)
		if err != nil || len(items) == 0 {
			return false
		}
		for _, it := range items {
			if !it.Status.Terminal() {
				return false
			}
		}
	}
	return true
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
