package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain/ports/adapter"
)

var (
	_ adapter.TelegramBotAdapter = (*RealBot)(nil)
	_ adapter.TelegramBotAdapter = (*NoopBot)(nil)
)

// Sender is the slice of tgbotapi.BotAPI the adapter needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RealBot sends outbound messages only; the pipeline never polls for updates.
type RealBot struct {
	api Sender
}

func NewRealBot(token string) (*RealBot, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &RealBot{api: api}, nil
}

func NewRealBotWithSender(api Sender) *RealBot { return &RealBot{api: api} }

func (r *RealBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := r.api.Send(msg)
	return err
}

// SendButtons sends text with an inline keyboard. URL buttons open a link, the rest
// send their Data (or Text) as callback data.
func (r *RealBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Text))
			}
		}
		kbRows = append(kbRows, kr)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(kbRows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	}
	_, err := r.api.Send(msg)
	return err
}

// NoopBot logs instead of sending.
type NoopBot struct {
	log *zerolog.Logger
}

func NewNoopBot(logger *zerolog.Logger) *NoopBot {
	l := logger.With().Str("component", "noop_telegram").Logger()
	return &NoopBot{log: &l}
}

func (b *NoopBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	b.log.Info().Int64("chat_id", chatID).Str("text", text).Msg("noop telegram message")
	return nil
}

func (b *NoopBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	b.log.Info().Int64("chat_id", chatID).Str("text", text).Int("rows", len(rows)).Msg("noop telegram buttons")
	return nil
}
