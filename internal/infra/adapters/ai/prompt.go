package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
)

const classifySystemPrompt = `You organise short personal notes.
Reply with a single JSON object and nothing else:
{"category":{"main":"<one of: %s>","subcategory":"<optional short label>"},
 "tags":["<lowercase keyword>", ...],
 "confidence":<0..1>,
 "suggestions":["<short follow-up action>", ...]}
Use at most 10 tags and at most 3 suggestions.`

const detectSystemPrompt = `You decide whether a note describes a calendar event or a reminder with a time.
Reply with a single JSON object and nothing else:
{"has_event":<bool>,
 "natural_language_text":"<event title and time phrased for a calendar quick-add, e.g. 'Lunch with Ana tomorrow 1pm'>",
 "confidence":<0..1>,
 "reason":"<one sentence>"}
Resolve relative dates against the reference time. Leave natural_language_text empty when has_event is false.`

func classifySystem() string {
	cats := model.MainCategories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return fmt.Sprintf(classifySystemPrompt, strings.Join(names, ", "))
}

// classifyUser renders the note plus its context. The note itself is never truncated;
// recent thoughts are dropped oldest first until the prompt fits the budget.
func classifyUser(content string, cctx adapter.ClassificationContext, budget *TokenBudget) string {
	var prefs string
	if len(cctx.Preferences.PreferredCategories) > 0 {
		p := make([]string, len(cctx.Preferences.PreferredCategories))
		for i, c := range cctx.Preferences.PreferredCategories {
			p[i] = string(c)
		}
		prefs = "The user usually files notes as: " + strings.Join(p, ", ") + ".\n"
	}
	if cctx.Preferences.Language != "" {
		prefs += "Write tags and suggestions in " + cctx.Preferences.Language + ".\n"
	}
	note := budget.Truncate(content)
	head := prefs + "Note:\n" + note + "\n"

	recent := cctx.Recent
	for {
		var b strings.Builder
		b.WriteString(head)
		if len(recent) > 0 {
			b.WriteString("\nRecent notes by the same user, newest first:\n")
			for _, r := range recent {
				fmt.Fprintf(&b, "- [%s] %s", r.Category, oneLine(r.Content, 200))
				if len(r.Tags) > 0 {
					fmt.Fprintf(&b, " (tags: %s)", strings.Join(r.Tags, ", "))
				}
				b.WriteByte('\n')
			}
		}
		out := b.String()
		if len(recent) == 0 || budget.Fits(out) {
			return out
		}
		recent = recent[:len(recent)-1]
	}
}

func detectUser(content string, ref adapter.EventReference, budget *TokenBudget) string {
	tz := ref.Timezone
	if tz == "" {
		tz = "UTC"
	}
	now := ref.Now
	if loc, err := time.LoadLocation(tz); err == nil {
		now = now.In(loc)
	}
	return fmt.Sprintf("Reference time: %s (%s, %s)\nNote:\n%s\n",
		now.Format("2006-01-02 15:04"), now.Weekday(), tz, budget.Truncate(content))
}

type classificationWire struct {
	Category struct {
		Main        string `json:"main"`
		Subcategory string `json:"subcategory"`
	} `json:"category"`
	Tags        []string `json:"tags"`
	Confidence  float64  `json:"confidence"`
	Suggestions []string `json:"suggestions"`
}

var errEmptyReply = errors.New("empty model reply")

// parseClassification accepts the model reply with or without a code fence. A reply
// that is not JSON is a transient model hiccup and may be retried.
func parseClassification(raw string) (adapter.Classification, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return adapter.Classification{}, err
	}
	var w classificationWire
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return adapter.Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	sugg := make([]string, 0, len(w.Suggestions))
	for _, s := range w.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			sugg = append(sugg, s)
		}
	}
	return adapter.Classification{
		Category:    model.NewCategory(w.Category.Main, w.Category.Subcategory),
		Tags:        model.NormalizeTags(w.Tags),
		Confidence:  model.ClampConfidence(w.Confidence),
		Suggestions: sugg,
	}, nil
}

func parseSuggestion(raw string) (model.CalendarEventSuggestion, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return model.CalendarEventSuggestion{}, err
	}
	var s model.CalendarEventSuggestion
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return model.CalendarEventSuggestion{}, fmt.Errorf("decode event suggestion: %w", err)
	}
	s.NaturalLanguageText = strings.TrimSpace(s.NaturalLanguageText)
	s.Confidence = model.ClampConfidence(s.Confidence)
	if !s.HasEvent {
		s.NaturalLanguageText = ""
	}
	return s, nil
}

func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errEmptyReply
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", fmt.Errorf("no json object in reply: %q", oneLine(raw, 80))
	}
	return s[start : end+1], nil
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "…"
	}
	return s
}

// classifyStatus maps a provider HTTP status to the pipeline's failure classes.
func classifyStatus(provider string, code int, err error) error {
	switch {
	case code == 429:
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrRateLimited, err)
	case code == 400 || code == 401 || code == 403 || code == 404 || code == 422:
		return domain.Permanent(fmt.Errorf("%s http %d: %w", provider, code, err))
	default:
		return fmt.Errorf("%s http %d: %w", provider, code, err)
	}
}
