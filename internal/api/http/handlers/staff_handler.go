package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/api/dto"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/service"
)

// StaffHandler exposes login and the staff directory.
type StaffHandler struct {
	authService  *service.AuthService
	staffService *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService, staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{authService: authService, staffService: staffService}
}

// Login handles POST /auth/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	staff, token, exp, err := h.authService.LoginStaff(c.UserContext(), service.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Path:      c.Path(),
	})
	if err != nil {
		return err
	}

	return data(c, http.StatusOK, fiber.Map{
		"staff": dto.NewStaffResponse(staff),
		"auth":  dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}

// CreateStaff handles POST /staff.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.StaffCreateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	staff, err := h.staffService.CreateStaffMember(c.UserContext(), caller, service.StaffInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		Role:          req.Role,
		SecretariatID: req.SecretariatID,
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewStaffResponse(staff))
}

// ListStaff handles GET /staff.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	filters := service.StaffListFilters{
		SecretariatID: optionalQuery(c, "secretariat_id"),
		Active:        parseBoolQuery(c, "active"),
	}
	if role := c.Query("role"); role != "" {
		r := domain.StaffRole(role)
		filters.Role = &r
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)
	filters.Offset = (page - 1) * pageSize
	filters.Limit = pageSize

	list, err := h.staffService.ListStaffMembers(c.UserContext(), caller, filters)
	if err != nil {
		return err
	}
	resp := make([]dto.StaffResponse, 0, len(list))
	for i := range list {
		resp = append(resp, dto.NewStaffResponse(&list[i]))
	}
	return data(c, http.StatusOK, resp)
}
