package dto

import "encoding/json"

// WhatsAppWebhook is the subset of the Meta Cloud API payload the intake reads.
type WhatsAppWebhook struct {
	Object string          `json:"object"`
	Entry  []WhatsAppEntry `json:"entry"`
}

// WhatsAppEntry groups changes for one business account.
type WhatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []WhatsAppChange `json:"changes"`
}

// WhatsAppChange holds one value block.
type WhatsAppChange struct {
	Field string        `json:"field"`
	Value WhatsAppValue `json:"value"`
}

// WhatsAppValue carries contacts and messages; status callbacks have neither.
type WhatsAppValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         map[string]string `json:"metadata"`
	Contacts         []WhatsAppContact `json:"contacts"`
	Messages         []WhatsAppMessage `json:"messages"`
}

// WhatsAppContact maps a wa_id to the profile name.
type WhatsAppContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WhatsAppMessage is one inbound message.
type WhatsAppMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// InstagramInbound is the relay payload for one Instagram direct message.
type InstagramInbound struct {
	InstagramUserID   string `json:"instagram_user_id"`
	InstagramUsername string `json:"instagram_username"`
	Text              string `json:"text"`
	ExternalMessageID string `json:"external_message_id"`
}

// AgentResultRequest is the automation engine's verdict for a run.
type AgentResultRequest struct {
	AgentRunID string            `json:"agent_run_id"`
	Actions    []json.RawMessage `json:"actions"`
	Confidence *float64          `json:"confidence"`
	RiskLevel  *string           `json:"risk_level"`
}

// IntakeResponse reports a processed inbound message.
type IntakeResponse struct {
	CaseID    string `json:"case_id"`
	Protocol  string `json:"protocol"`
	Routed    bool   `json:"routed"`
	Duplicate bool   `json:"deduped,omitempty"`
}
