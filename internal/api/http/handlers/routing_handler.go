package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/api/dto"
	"github.com/spec-kit/ombudsman-service/internal/routing"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

// RoutingHandler lets rule authors dry-run the rule set.
type RoutingHandler struct {
	engine *routing.Engine
}

// NewRoutingHandler constructs handler.
func NewRoutingHandler(engine *routing.Engine) *RoutingHandler {
	return &RoutingHandler{engine: engine}
}

// Simulate handles POST /routing-rules/simulate.
func (h *RoutingHandler) Simulate(c *fiber.Ctx) error {
	var req dto.SimulateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperrors.NewValidationError("text is required", nil)
	}
	res, err := h.engine.Simulate(c.UserContext(), routing.Input{Channel: req.Channel, Text: req.Text})
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, fiber.Map{
		"matched": res.Matched,
		"rule_id": res.RuleID,
	})
}
