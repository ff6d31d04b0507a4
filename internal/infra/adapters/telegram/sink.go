package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
)

var _ adapter.NotificationSink = (*Sink)(nil)

// Sink forwards pipeline notifications to the owner's linked Telegram chat. Owners
// without a chat are skipped silently.
type Sink struct {
	bot      adapter.TelegramBotAdapter
	settings repository.SettingsRepository
}

func NewSink(bot adapter.TelegramBotAdapter, settings repository.SettingsRepository) *Sink {
	return &Sink{bot: bot, settings: settings}
}

func (s *Sink) Name() string { return "telegram" }

func (s *Sink) Publish(ctx context.Context, n adapter.Notification) error {
	st, err := s.settings.Get(ctx, n.OwnerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("telegram sink: load settings: %w", err)
	}
	if st.TelegramChatID == 0 {
		return nil
	}

	text, link := render(n)
	if text == "" {
		return nil
	}
	if link != "" {
		return s.bot.SendButtons(ctx, st.TelegramChatID, text, [][]adapter.InlineButton{{{Text: "Open in Calendar", URL: link}}})
	}
	return s.bot.SendMessage(ctx, st.TelegramChatID, text)
}

// render returns the message body and an optional link button target.
func render(n adapter.Notification) (string, string) {
	str := func(k string) string {
		v, _ := n.Data[k].(string)
		return html.EscapeString(v)
	}
	switch n.Type {
	case adapter.EventTranscribed:
		return "🎙 <b>Voice note transcribed</b>\n" + str("text"), ""
	case adapter.EventEnriched:
		return fmt.Sprintf("🗂 Filed as <b>%s</b>", str("category")), ""
	case adapter.EventCalendarEventCreated:
		link, _ := n.Data["event_link"].(string)
		return "📅 <b>Calendar event created</b>", link
	case adapter.EventStageFailed:
		return fmt.Sprintf("⚠️ Could not finish <b>%s</b> for one of your thoughts: %s", html.EscapeString(n.Stage), str("error")), ""
	}
	return "", ""
}
