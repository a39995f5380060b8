package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/api/dto"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/service"
)

// CitizensHandler lets staff correct citizen profiles.
type CitizensHandler struct {
	citizens *service.CitizenResolver
}

// NewCitizensHandler constructs handler.
func NewCitizensHandler(citizens *service.CitizenResolver) *CitizensHandler {
	return &CitizensHandler{citizens: citizens}
}

// Update handles PUT /citizens/:id.
func (h *CitizensHandler) Update(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.CitizenUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.citizens.UpdateCitizen(c.UserContext(), caller, c.Params("id"), domain.CitizenFields{
		FullName:          req.FullName,
		Email:             req.Email,
		PhoneE164:         req.PhoneE164,
		InstagramUsername: req.InstagramUsername,
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCitizenResponse(updated))
}
