package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ombudsman-service/internal/api/dto"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	"github.com/spec-kit/ombudsman-service/internal/service"
)

// CasesHandler exposes the staff case API.
type CasesHandler struct {
	cases *service.CaseService
	agent *service.AgentService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(cases *service.CaseService, agent *service.AgentService) *CasesHandler {
	return &CasesHandler{cases: cases, agent: agent}
}

// List handles GET /cases.
func (h *CasesHandler) List(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	filter := repository.CaseFilter{
		QueueID:    optionalQuery(c, "queue_id"),
		SearchTerm: optionalQuery(c, "q"),
	}
	for _, s := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.CaseStatus(s))
	}
	for _, p := range splitQuery(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.CasePriority(p))
	}
	if ch := c.Query("channel"); ch != "" {
		channel := domain.Channel(ch)
		filter.Channel = &channel
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize

	list, err := h.cases.List(c.UserContext(), caller, filter)
	if err != nil {
		return err
	}
	resp := make([]dto.CaseResponse, 0, len(list))
	for i := range list {
		resp = append(resp, dto.NewCaseResponse(&list[i]))
	}
	return data(c, http.StatusOK, resp)
}

// Get handles GET /cases/:id.
func (h *CasesHandler) Get(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	detail, err := h.cases.Get(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCaseDetailResponse(detail))
}

// SetStatus handles PATCH /cases/:id/status.
func (h *CasesHandler) SetStatus(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.cases.SetStatus(c.UserContext(), caller, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCaseResponse(updated))
}

// SetPriority handles PATCH /cases/:id/priority.
func (h *CasesHandler) SetPriority(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.PriorityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.cases.SetPriority(c.UserContext(), caller, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCaseResponse(updated))
}

// AttachTags handles POST /cases/:id/tags.
func (h *CasesHandler) AttachTags(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.TagsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	attached, err := h.cases.AttachTags(c.UserContext(), caller, c.Params("id"), req.Tags)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, fiber.Map{"attached": attached})
}

// Transfer handles POST /cases/:id/transfer.
func (h *CasesHandler) Transfer(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.TransferRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.cases.TransferQueue(c.UserContext(), caller, c.Params("id"), req.QueueID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCaseResponse(updated))
}

// Assign handles POST /cases/:id/assign.
func (h *CasesHandler) Assign(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.cases.Assign(c.UserContext(), caller, c.Params("id"), req.StaffID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCaseResponse(updated))
}

// Messages handles GET /cases/:id/messages.
func (h *CasesHandler) Messages(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	thread, err := h.cases.Messages(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.MessageResponse, 0, len(thread))
	for i := range thread {
		resp = append(resp, dto.NewMessageResponse(&thread[i]))
	}
	return data(c, http.StatusOK, resp)
}

// Reply handles POST /cases/:id/reply. A failed delivery still answers 201
// with delivery_status "failed".
func (h *CasesHandler) Reply(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.TextRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	msg, err := h.cases.Reply(c.UserContext(), caller, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewMessageResponse(msg))
}

// AddNote handles POST /cases/:id/notes.
func (h *CasesHandler) AddNote(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.TextRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	msg, err := h.cases.AddNote(c.UserContext(), caller, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewMessageResponse(msg))
}

// Resend handles POST /messages/:id/resend.
func (h *CasesHandler) Resend(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	msg, err := h.cases.Resend(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewMessageResponse(msg))
}

// MarkProcessed handles PATCH /messages/:id/processed.
func (h *CasesHandler) MarkProcessed(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	if err := h.cases.MarkProcessed(c.UserContext(), caller, c.Params("id")); err != nil {
		return err
	}
	return data(c, http.StatusOK, fiber.Map{"status": "processed"})
}

// Timeline handles GET /cases/:id/timeline.
func (h *CasesHandler) Timeline(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	page, err := h.cases.Timeline(c.UserContext(), caller, c.Params("id"), c.Query("cursor"), parseIntQuery(c, "limit", 0))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewTimelineResponse(page))
}

// RunAgent handles POST /cases/:id/agent/run.
func (h *CasesHandler) RunAgent(c *fiber.Ctx) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req dto.AgentRunRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	run, err := h.agent.RequestRun(c.UserContext(), caller, c.Params("id"), req.MessageID)
	if err != nil {
		return err
	}
	return data(c, http.StatusAccepted, fiber.Map{
		"agent_run_id": run.ID,
		"case_id":      run.CaseID,
		"status":       run.Status,
	})
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
