package model

// UserIntegrationSettings is owned by the account subsystem. The pipeline only reads it.
type UserIntegrationSettings struct {
	OwnerID                    string              `json:"owner_id"`
	CalendarIntegrationEnabled bool                `json:"calendar_integration_enabled"`
	AutoCalendarEventsEnabled  bool                `json:"auto_calendar_events_enabled"`
	Timezone                   string              `json:"timezone"`
	DefaultCalendarID          string              `json:"default_calendar_id"`
	Credentials                CalendarCredentials `json:"credentials"`
	Preferences                Preferences         `json:"preferences"`
	TelegramChatID             int64               `json:"telegram_chat_id,omitempty"`
}

// CalendarCredentials holds the provider refresh token, AES-GCM encrypted at rest.
type CalendarCredentials struct {
	Provider              string `json:"provider"`
	EncryptedRefreshToken string `json:"encrypted_refresh_token"`
}

func (c CalendarCredentials) Present() bool { return c.EncryptedRefreshToken != "" }

// Preferences bias classification toward what the user usually files.
type Preferences struct {
	PreferredCategories []MainCategory `json:"preferred_categories,omitempty"`
	Language            string         `json:"language,omitempty"`
}

// DefaultSettings is used when an owner has no settings row: every integration off.
func DefaultSettings(ownerID string) *UserIntegrationSettings {
	return &UserIntegrationSettings{OwnerID: ownerID, Timezone: "UTC", DefaultCalendarID: "primary"}
}

func (s *UserIntegrationSettings) CalendarID() string {
	if s.DefaultCalendarID == "" {
		return "primary"
	}
	return s.DefaultCalendarID
}
