package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/api/dto"
	"github.com/spec-kit/ombudsman-service/internal/automation"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/service"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
	"github.com/spec-kit/ombudsman-service/pkg/util/hmacutil"
)

const headerMetaSignature = "X-Hub-Signature-256"

// SignatureVerifier checks an HMAC signature over a raw body.
type SignatureVerifier interface {
	Verify(body []byte, signature string) bool
}

// WebhookConfig carries the channel secrets.
type WebhookConfig struct {
	MetaAppSecret       string
	WhatsAppVerifyToken string
}

// WebhooksHandler receives provider and automation callbacks.
type WebhooksHandler struct {
	intake     *service.IntakeService
	agent      *service.AgentService
	audit      *service.AuditRecorder
	automation SignatureVerifier
	cfg        WebhookConfig
	logger     *zap.Logger
}

// NewWebhooksHandler constructs handler.
func NewWebhooksHandler(intake *service.IntakeService, agent *service.AgentService, audit *service.AuditRecorder, verifier SignatureVerifier, cfg WebhookConfig, logger *zap.Logger) *WebhooksHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhooksHandler{intake: intake, agent: agent, audit: audit, automation: verifier, cfg: cfg, logger: logger}
}

// VerifyWhatsApp handles the GET subscription handshake.
func (h *WebhooksHandler) VerifyWhatsApp(c *fiber.Ctx) error {
	if c.Query("hub.mode") != "subscribe" || h.cfg.WhatsAppVerifyToken == "" ||
		c.Query("hub.verify_token") != h.cfg.WhatsAppVerifyToken {
		return apperrors.NewForbidden("verification failed")
	}
	return c.Status(http.StatusOK).SendString(c.Query("hub.challenge"))
}

// ReceiveWhatsApp handles POST /webhooks/whatsapp.
func (h *WebhooksHandler) ReceiveWhatsApp(c *fiber.Ctx) error {
	body := c.Body()
	if !hmacutil.Verify(h.cfg.MetaAppSecret, body, c.Get(headerMetaSignature)) {
		h.rejectSignature(c, "whatsapp")
		return apperrors.NewUnauthorized("invalid signature")
	}

	var payload dto.WhatsAppWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.NewValidationError("invalid JSON", nil)
	}

	results := []dto.IntakeResponse{}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				res, err := h.intake.Ingest(c.UserContext(), whatsAppInbound(msg, names[msg.From], change.Value.Metadata))
				if err != nil {
					// Malformed messages are skipped so Meta does not retry them forever.
					if apperrors.IsCode(err, apperrors.CodeValidation) {
						h.logger.Warn("skipping whatsapp message", zap.String("message_id", msg.ID), zap.Error(err))
						continue
					}
					return err
				}
				results = append(results, intakeResponse(res))
			}
		}
	}
	return data(c, http.StatusOK, results)
}

func whatsAppInbound(msg dto.WhatsAppMessage, name string, meta map[string]string) service.InboundMessage {
	text := fmt.Sprintf("[%s]", msg.Type)
	if msg.Type == "text" && msg.Text != nil {
		text = msg.Text.Body
	}
	return service.InboundMessage{
		Channel: domain.ChannelWhatsApp,
		Source:  "whatsapp",
		Sender: service.CitizenHints{
			WhatsAppID: msg.From,
			FullName:   name,
		},
		Text:              text,
		ProviderMessageID: msg.ID,
		Metadata: map[string]any{
			"wa_id":           msg.From,
			"message_type":    msg.Type,
			"phone_number_id": meta["phone_number_id"],
		},
	}
}

// ReceiveInstagram handles POST /webhooks/instagram, relayed and signed by
// the automation engine.
func (h *WebhooksHandler) ReceiveInstagram(c *fiber.Ctx) error {
	body, err := h.verifyAutomation(c, "instagram")
	if err != nil {
		return err
	}
	var payload dto.InstagramInbound
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.NewValidationError("invalid JSON", nil)
	}
	userID := strings.TrimSpace(payload.InstagramUserID)
	username := strings.TrimSpace(payload.InstagramUsername)

	res, err := h.intake.Ingest(c.UserContext(), service.InboundMessage{
		Channel: domain.ChannelInstagram,
		Source:  "instagram",
		Sender: service.CitizenHints{
			InstagramUserID:   userID,
			InstagramUsername: username,
		},
		Text:              strings.TrimSpace(payload.Text),
		ProviderMessageID: payload.ExternalMessageID,
		Metadata: map[string]any{
			"instagram_user_id":  userID,
			"instagram_username": username,
		},
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, intakeResponse(res))
}

// AgentResult handles POST /webhooks/automation/results.
func (h *WebhooksHandler) AgentResult(c *fiber.Ctx) error {
	body, err := h.verifyAutomation(c, "automation")
	if err != nil {
		return err
	}
	var req dto.AgentResultRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.NewValidationError("invalid JSON", nil)
	}
	if req.AgentRunID == "" {
		return apperrors.NewValidationError("agent_run_id is required", nil)
	}
	actions, err := service.ParseAgentActions(req.Actions)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	result := service.AgentResult{Actions: actions, Raw: body, Confidence: req.Confidence}
	if req.RiskLevel != nil {
		risk := domain.RiskLevel(*req.RiskLevel)
		switch risk {
		case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
			result.RiskLevel = &risk
		default:
			return apperrors.NewValidationError("invalid risk_level", map[string]any{"risk_level": *req.RiskLevel})
		}
	}

	outcome, err := h.agent.ApplyResult(c.UserContext(), req.AgentRunID, result)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, outcome)
}

func (h *WebhooksHandler) verifyAutomation(c *fiber.Ctx, source string) ([]byte, error) {
	signature := c.Get(automation.SignatureHeader)
	if signature == "" {
		return nil, apperrors.NewUnauthorized("missing signature")
	}
	body := c.Body()
	if h.automation == nil || !h.automation.Verify(body, signature) {
		h.rejectSignature(c, source)
		return nil, apperrors.NewForbidden("invalid signature")
	}
	return body, nil
}

func (h *WebhooksHandler) rejectSignature(c *fiber.Ctx, source string) {
	h.audit.RecordSecurity(c.UserContext(), service.SecurityEvent{
		Type:      "invalid_signature",
		IP:        c.IP(),
		Path:      c.Path(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Details:   map[string]any{"source": source},
	})
}

func intakeResponse(res *service.IntakeResult) dto.IntakeResponse {
	return dto.IntakeResponse{
		CaseID:    res.CaseID,
		Protocol:  res.Protocol,
		Routed:    res.Routed,
		Duplicate: res.Duplicate,
	}
}
