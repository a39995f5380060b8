package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

// MetaConfig holds Graph API credentials.
type MetaConfig struct {
	BaseURL       string
	PhoneNumberID string
	PageID        string
	WhatsAppToken string
	InstagramKey  string
	Timeout       time.Duration
}

func newGraphClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// No retries: a failed send is recorded and resent explicitly.
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// WhatsAppSender posts text messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	client        *resty.Client
	phoneNumberID string
	token         string
	logger        *zap.Logger
}

// NewWhatsAppSender builds the sender.
func NewWhatsAppSender(cfg MetaConfig, logger *zap.Logger) *WhatsAppSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppSender{
		client:        newGraphClient(cfg.BaseURL, cfg.Timeout),
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.WhatsAppToken,
		logger:        logger,
	}
}

type whatsAppText struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Send implements Sender.
func (s *WhatsAppSender) Send(ctx context.Context, c *domain.Case, text string) Result {
	if s.phoneNumberID == "" || s.token == "" {
		return Result{Error: "whatsapp integration missing credentials"}
	}
	if c.CitizenPhone == nil {
		return Result{Error: "case has no citizen phone"}
	}
	body := whatsAppText{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(*c.CitizenPhone, "+"),
		Type:             "text",
	}
	body.Text.Body = text

	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		SetBody(body).
		Post(fmt.Sprintf("/%s/messages", s.phoneNumberID))
	return result(s.logger, "whatsapp", c.ID, resp, err)
}

// InstagramSender replies through the Instagram messaging Graph endpoint.
// The recipient id comes from the case metadata written at intake.
type InstagramSender struct {
	client *resty.Client
	pageID string
	token  string
	logger *zap.Logger
}

// NewInstagramSender builds the sender.
func NewInstagramSender(cfg MetaConfig, logger *zap.Logger) *InstagramSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstagramSender{
		client: newGraphClient(cfg.BaseURL, cfg.Timeout),
		pageID: cfg.PageID,
		token:  cfg.InstagramKey,
		logger: logger,
	}
}

// Send implements Sender.
func (s *InstagramSender) Send(ctx context.Context, c *domain.Case, text string) Result {
	if s.pageID == "" || s.token == "" {
		return Result{Error: "instagram integration missing credentials"}
	}
	recipient, _ := c.Metadata["instagram_user_id"].(string)
	if recipient == "" {
		return Result{Error: "case has no instagram recipient"}
	}
	body := map[string]any{
		"recipient":      map[string]string{"id": recipient},
		"message":        map[string]string{"text": text},
		"messaging_type": "RESPONSE",
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		SetBody(body).
		Post(fmt.Sprintf("/%s/messages", s.pageID))
	return result(s.logger, "instagram", c.ID, resp, err)
}

func result(logger *zap.Logger, channel, caseID string, resp *resty.Response, err error) Result {
	if err != nil {
		logger.Warn("outbound send failed", zap.String("channel", channel), zap.String("case_id", caseID), zap.Error(err))
		return Result{Error: err.Error()}
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if msg == "" {
			msg = resp.Status()
		}
		logger.Warn("outbound send rejected",
			zap.String("channel", channel),
			zap.String("case_id", caseID),
			zap.Int("status_code", resp.StatusCode()))
		return Result{Error: msg}
	}
	return Result{OK: true}
}
