// Package calendar creates events from natural-language text.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/infra/metrics"
)

var _ adapter.CalendarCreator = (*GoogleCreator)(nil)

// TokenOpener decrypts a sealed refresh token.
type TokenOpener interface {
	Open(sealed string) (string, error)
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides the API base URL; tests point it at httptest.
	Endpoint string
	TokenURL string
}

// GoogleCreator uses the Calendar quick-add endpoint, which parses the text itself.
type GoogleCreator struct {
	oauth    *oauth2.Config
	endpoint string
	opener   TokenOpener
	log      *zerolog.Logger
}

func NewGoogleCreator(cfg GoogleConfig, opener TokenOpener, logger *zerolog.Logger) (*GoogleCreator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google calendar: client id and secret are required")
	}
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	l := logger.With().Str("component", "google_calendar").Logger()
	return &GoogleCreator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{gcal.CalendarEventsScope},
		},
		endpoint: cfg.Endpoint,
		opener:   opener,
		log:      &l,
	}, nil
}

func (g *GoogleCreator) CreateFromNaturalLanguage(ctx context.Context, creds model.CalendarCredentials, calendarID, timezone, text string) (model.CreatedEvent, error) {
	if !creds.Present() {
		return model.CreatedEvent{}, fmt.Errorf("no refresh token: %w", domain.ErrAuthorizationExpired)
	}
	refresh, err := g.opener.Open(creds.EncryptedRefreshToken)
	if err != nil {
		// a token we cannot read is as good as revoked
		return model.CreatedEvent{}, fmt.Errorf("open refresh token: %v: %w", err, domain.ErrAuthorizationExpired)
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	ts := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return model.CreatedEvent{}, domain.Permanent(fmt.Errorf("calendar service: %w", err))
	}

	start := time.Now()
	ev, err := svc.Events.QuickAdd(calendarID, text).Context(ctx).Do()
	metrics.ObserveExternalCall("google_calendar", time.Since(start), err == nil)
	if err != nil {
		return model.CreatedEvent{}, mapGoogleError(err)
	}

	out := model.CreatedEvent{EventID: ev.Id, EventLink: ev.HtmlLink}
	if ev.Start != nil {
		out.StartsAt = parseStart(ev.Start, timezone)
	}
	return out, nil
}

// parseStart reads a timed start, or the midnight of an all-day start in tz.
func parseStart(s *gcal.EventDateTime, tz string) *time.Time {
	if s.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, s.DateTime); err == nil {
			return &t
		}
	}
	if s.Date != "" {
		loc := time.UTC
		if l, err := time.LoadLocation(firstNonEmpty(s.TimeZone, tz)); err == nil {
			loc = l
		}
		if t, err := time.ParseInLocation("2006-01-02", s.Date, loc); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}

func mapGoogleError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode == "invalid_grant" || (rerr.Response != nil && rerr.Response.StatusCode == http.StatusUnauthorized) {
			return fmt.Errorf("google token refresh: %v: %w", rerr.ErrorCode, domain.ErrAuthorizationExpired)
		}
		return fmt.Errorf("google token refresh: %w", err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("google calendar: %w", domain.ErrAuthorizationExpired)
		case gerr.Code == http.StatusTooManyRequests || (gerr.Code == http.StatusForbidden && rateLimited(gerr)):
			return fmt.Errorf("google calendar: %v: %w", gerr.Message, domain.ErrRateLimited)
		case gerr.Code == http.StatusForbidden:
			// scope removed or calendar not shared with the user
			return fmt.Errorf("google calendar: %v: %w", gerr.Message, domain.ErrAuthorizationExpired)
		case gerr.Code >= 400 && gerr.Code < 500:
			return domain.Permanent(fmt.Errorf("google calendar http %d: %w", gerr.Code, err))
		}
	}
	return fmt.Errorf("google calendar: %w", err)
}

func rateLimited(e *googleapi.Error) bool {
	for _, item := range e.Errors {
		if strings.Contains(item.Reason, "ateLimitExceeded") {
			return true
		}
	}
	return false
}
