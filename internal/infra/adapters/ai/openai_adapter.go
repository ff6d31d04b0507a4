package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the ports
var (
	_ adapter.Classifier    = (*OpenAIAdapter)(nil)
	_ adapter.EventDetector = (*OpenAIAdapter)(nil)
	_ adapter.SpeechToText  = (*OpenAIAdapter)(nil)
)

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string // empty for api.openai.com
	ClassifierModel    string
	DetectorModel      string
	TranscriptionModel string
	MaxPromptTokens    int
	Timeout            time.Duration
}

// OpenAIAdapter serves classification and event detection over Chat Completions and
// transcription over the audio API.
type OpenAIAdapter struct {
	client      openai.Client
	cfg         OpenAIConfig
	classBudget *TokenBudget
	detBudget   *TokenBudget
	http        *http.Client
	log         *zerolog.Logger
}

func NewOpenAIAdapter(cfg OpenAIConfig, logger *zerolog.Logger) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = "gpt-4o-mini"
	}
	if cfg.DetectorModel == "" {
		cfg.DetectorModel = cfg.ClassifierModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0), // retries belong to the queue
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	l := logger.With().Str("component", "openai").Logger()
	return &OpenAIAdapter{
		client:      openai.NewClient(opts...),
		cfg:         cfg,
		classBudget: NewTokenBudget(cfg.ClassifierModel, cfg.MaxPromptTokens, &l),
		detBudget:   NewTokenBudget(cfg.DetectorModel, cfg.MaxPromptTokens, &l),
		http:        &http.Client{Timeout: cfg.Timeout},
		log:         &l,
	}, nil
}

func (o *OpenAIAdapter) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	reply, err := o.complete(ctx, "openai_classify", o.cfg.ClassifierModel, classifySystem(), classifyUser(content, cctx, o.classBudget))
	if err != nil {
		return adapter.Classification{}, err
	}
	return parseClassification(reply)
}

func (o *OpenAIAdapter) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	reply, err := o.complete(ctx, "openai_detect", o.cfg.DetectorModel, detectSystemPrompt, detectUser(content, ref, o.detBudget))
	if err != nil {
		return model.CalendarEventSuggestion{}, err
	}
	return parseSuggestion(reply)
}

func (o *OpenAIAdapter) complete(ctx context.Context, collab, modelName, system, user string) (string, error) {
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0.2),
	})
	metrics.ObserveExternalCall(collab, time.Since(start), err == nil)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	metrics.AddPromptTokens("openai", modelName, int(resp.Usage.PromptTokens))
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errEmptyReply
}

// whisperFormats are the container formats the transcription endpoint accepts.
var whisperFormats = map[string]string{
	".flac": "audio/flac", ".m4a": "audio/mp4", ".mp3": "audio/mpeg", ".mp4": "audio/mp4",
	".mpeg": "audio/mpeg", ".mpga": "audio/mpeg", ".oga": "audio/ogg", ".ogg": "audio/ogg",
	".wav": "audio/wav", ".webm": "audio/webm",
}

// Transcribe downloads audioRef over HTTP(S) and sends it for transcription.
func (o *OpenAIAdapter) Transcribe(ctx context.Context, audioRef string) (adapter.Transcription, error) {
	name := path.Base(strings.SplitN(audioRef, "?", 2)[0])
	contentType, ok := whisperFormats[strings.ToLower(path.Ext(name))]
	if !ok {
		return adapter.Transcription{}, fmt.Errorf("%s: %w", name, domain.ErrUnsupportedAudio)
	}

	body, err := o.fetch(ctx, audioRef)
	if err != nil {
		return adapter.Transcription{}, err
	}
	defer body.Close()

	start := time.Now()
	tr, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(o.cfg.TranscriptionModel),
		File:  openai.File(body, name, contentType),
	})
	metrics.ObserveExternalCall("openai_transcribe", time.Since(start), err == nil)
	if err != nil {
		return adapter.Transcription{}, mapOpenAIError(err)
	}
	// the plain json response carries no confidence
	return adapter.Transcription{Text: strings.TrimSpace(tr.Text), Confidence: 1}, nil
}

func (o *OpenAIAdapter) fetch(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return nil, domain.Permanent(fmt.Errorf("audio ref %q is not a url", ref))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, domain.Permanent(err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
			return nil, domain.Permanent(fmt.Errorf("fetch audio: http %d", resp.StatusCode))
		}
		return nil, fmt.Errorf("fetch audio: http %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "audio/") &&
		!strings.HasPrefix(ct, "video/") && ct != "application/octet-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("content type %s: %w", ct, domain.ErrUnsupportedAudio)
	}
	return resp.Body, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai: %w", err)
}
