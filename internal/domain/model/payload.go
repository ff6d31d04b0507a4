package model

// Stage payloads carried in ProcessingItem.Payload.

type TranscribePayload struct {
	ThoughtID string `json:"thought_id"`
	OwnerID   string `json:"owner_id"`
	AudioRef  string `json:"audio_ref"`
}

type EnrichPayload struct {
	ThoughtID string `json:"thought_id"`
	OwnerID   string `json:"owner_id"`
	Content   string `json:"content"`
}

type CalendarPayload struct {
	ThoughtID string `json:"thought_id"`
	OwnerID   string `json:"owner_id"`
	Content   string `json:"content"`
}
