package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/api/dto"
	"github.com/spec-kit/ombudsman-service/internal/service"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

// PublicHandler serves the citizen-facing web form and protocol lookup.
type PublicHandler struct {
	intake        *service.IntakeService
	intakeEnabled bool
}

// NewPublicHandler constructs handler.
func NewPublicHandler(intake *service.IntakeService, intakeEnabled bool) *PublicHandler {
	return &PublicHandler{intake: intake, intakeEnabled: intakeEnabled}
}

// CreateCase handles POST /public/cases.
func (h *PublicHandler) CreateCase(c *fiber.Ctx) error {
	if !h.intakeEnabled {
		return apperrors.NewForbidden("public intake disabled")
	}
	var req dto.PublicCaseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.intake.SubmitWebForm(c.UserContext(), service.WebForm{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Description: req.Description,
		Consent:     req.Consent,
		IP:          c.IP(),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.PublicCaseCreated{Protocol: res.Protocol})
}

// Lookup handles GET /public/cases/:protocol.
func (h *PublicHandler) Lookup(c *fiber.Ctx) error {
	summary, err := h.intake.Lookup(c.UserContext(), c.Params("protocol"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewPublicCaseStatus(summary))
}
