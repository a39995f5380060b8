package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ombudsman-service/internal/api/http/handlers"
	"github.com/spec-kit/ombudsman-service/internal/auth"
	"github.com/spec-kit/ombudsman-service/internal/automation"
	"github.com/spec-kit/ombudsman-service/internal/channel"
	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/events"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/ratelimit"
	"github.com/spec-kit/ombudsman-service/internal/repository/memory"
	"github.com/spec-kit/ombudsman-service/internal/routing"
	"github.com/spec-kit/ombudsman-service/internal/service"
	"github.com/spec-kit/ombudsman-service/internal/worker"
	"github.com/spec-kit/ombudsman-service/pkg/util/hmacutil"
)

const (
	metaSecret       = "meta-app-secret"
	automationSecret = "automation-secret"
	verifyToken      = "verify-me"
)

type testServer struct {
	app     *fiber.App
	store   *memory.Store
	metrics *observability.Metrics
	token   string
}

type serverOption func(*RouteConfig, *bool)

func withIntakeLimit(n int) serverOption {
	return func(cfg *RouteConfig, _ *bool) {
		cfg.IntakeLimit = RateLimitRule{Name: "public_cases", Limit: n, Window: time.Hour}
	}
}

func withIntakeDisabled() serverOption {
	return func(_ *RouteConfig, enabled *bool) { *enabled = false }
}

type okSender struct{}

func (okSender) Send(_ context.Context, _ *domain.Case, _ string) channel.Result {
	return channel.Result{OK: true}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	secretariat := store.AddSecretariat("OUVIDORIA_CENTRAL", "Ouvidoria")
	store.AddQueue(domain.Queue{SecretariatID: secretariat, Slug: "triagem", Name: "Triagem", SLAHours: 48, IsActive: true})

	hash, err := auth.HashStaffPassword("admin-pass", bcrypt.MinCost)
	require.NoError(t, err)
	store.AddStaff(domain.StaffMember{Name: "Admin", Email: "admin@city.gov", PasswordHash: hash, Role: domain.StaffRoleAdmin, Active: true})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	audit := service.NewAuditRecorder(store.Audit(), store.SecurityEventLog(), logger, metrics)
	citizens := service.NewCitizenResolver(store.Citizens(), store.Cases(), audit, logger)
	engine := routing.NewEngine(store.RoutingRules(), store.Queues(), store.SLARules(), store.Tags(), store.MissingFields(), store.Cases(),
		routing.Options{TriageQueueSlug: "triagem"}, logger)
	sla := service.NewSLAScheduler(service.SLADependencies{
		CaseRepo: store.Cases(), QueueRepo: store.Queues(), Timer: worker.NewRedisTimerQueue(client, ""),
		Audit: audit, Dispatcher: dispatcher, Metrics: metrics, Logger: logger,
	})
	cases := service.NewCaseService(service.CaseDependencies{
		CaseRepo: store.Cases(), MessageRepo: store.Messages(), TagRepo: store.Tags(), MissingFieldRepo: store.MissingFields(),
		QueueRepo: store.Queues(), StaffRepo: store.Staff(),
		Scopes: auth.NewScopeResolver(store.Queues(), nil, false, logger, metrics),
		SLA:    sla, Sender: okSender{}, Audit: audit, Dispatcher: dispatcher, Metrics: metrics, Logger: logger,
	})
	intake := service.NewIntakeService(service.IntakeDependencies{
		Transactor: store, CaseRepo: store.Cases(), MessageRepo: store.Messages(), MissingFieldRepo: store.MissingFields(),
		Citizens: citizens, Protocols: service.NewProtocolGenerator(store.Cases()), Engine: engine, SLA: sla,
		Audit: audit, Dispatcher: dispatcher, Logger: logger,
	})
	agent := service.NewAgentService(service.AgentDependencies{
		AgentRunRepo: store.AgentRuns(), MessageRepo: store.Messages(), QueueRepo: store.Queues(), Cases: cases,
		Audit: audit, Dispatcher: dispatcher, Policy: service.AgentPolicy{HandoffThreshold: 0.5}, TriageQueueSlug: "triagem",
		Logger: logger,
	})
	tokens := auth.NewTokenManager("test-secret", 30)

	cfg := RouteConfig{
		Health:         handlers.NewHealthHandler("ombudsman-service", "test", map[string]handlers.Pinger{"postgres": nil}),
		Staff:          handlers.NewStaffHandler(service.NewAuthService(tokens, store.Staff(), audit), service.NewStaffService(store.Staff(), store.Queues(), audit, bcrypt.MinCost)),
		Cases:          handlers.NewCasesHandler(cases, agent),
		Citizens:       handlers.NewCitizensHandler(citizens),
		Routing:        handlers.NewRoutingHandler(engine),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Staff()),
		Limiter:        ratelimit.New(client, "test:rl:", logger),
		Audit:          audit,
		Metrics:        metrics,
	}
	intakeEnabled := true
	for _, opt := range opts {
		opt(&cfg, &intakeEnabled)
	}
	cfg.Public = handlers.NewPublicHandler(intake, intakeEnabled)
	cfg.Webhooks = handlers.NewWebhooksHandler(intake, agent, audit,
		automation.NewClient("", automationSecret, time.Second, logger),
		handlers.WebhookConfig{MetaAppSecret: metaSecret, WhatsAppVerifyToken: verifyToken}, logger)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, cfg)

	srv := &testServer{app: app, store: store, metrics: metrics}
	srv.token = srv.login(t)
	return srv
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) (int, envelope, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env, raw
}

func (s *testServer) authed() map[string]string {
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + s.token}
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	status, env, _ := s.do(t, fiber.MethodPost, "/auth/login", mustJSON(t, map[string]string{"email": "admin@city.gov", "password": "admin-pass"}), nil)
	require.Equal(t, fiber.StatusOK, status)
	var out struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Auth.Token)
	return out.Auth.Token
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func whatsAppPayload(msgID, waID, msgType, text string) map[string]any {
	msg := map[string]any{"id": msgID, "from": waID, "timestamp": "1709546400", "type": msgType}
	if msgType == "text" {
		msg["text"] = map[string]string{"body": text}
	}
	return map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "waba",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"metadata":          map[string]string{"phone_number_id": "123"},
					"contacts":          []any{map[string]any{"wa_id": waID, "profile": map[string]string{"name": "Maria"}}},
					"messages":          []any{msg},
				},
			}},
		}},
	}
}

func TestHealthLive(t *testing.T) {
	srv := newTestServer(t)
	status, _, raw := srv.do(t, fiber.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"alive"`)

	status, _, raw = srv.do(t, fiber.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"disabled"`)
}

func TestWhatsAppVerificationHandshake(t *testing.T) {
	srv := newTestServer(t)
	status, _, raw := srv.do(t, fiber.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token="+verifyToken+"&hub.challenge=42", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "42", string(raw))

	status, env, _ := srv.do(t, fiber.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestWhatsAppWebhookIngestsSignedMessages(t *testing.T) {
	srv := newTestServer(t)
	body := mustJSON(t, whatsAppPayload("wamid.1", "5586999990001", "text", "buraco na rua"))

	status, env, _ := srv.do(t, fiber.MethodPost, "/webhooks/whatsapp", body, map[string]string{"X-Hub-Signature-256": "sha256=deadbeef"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	require.Len(t, srv.store.SecurityEvents(), 1)
	assert.Equal(t, "invalid_signature", srv.store.SecurityEvents()[0].Type)
	assert.Zero(t, srv.store.CountCases())

	signed := map[string]string{"X-Hub-Signature-256": "sha256=" + hmacutil.Sign(metaSecret, body)}
	status, env, _ = srv.do(t, fiber.MethodPost, "/webhooks/whatsapp", body, signed)
	require.Equal(t, fiber.StatusOK, status)
	var results []struct {
		CaseID   string `json:"case_id"`
		Protocol string `json:"protocol"`
		Deduped  bool   `json:"deduped"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 1)
	assert.True(t, service.IsValidProtocolFormat(results[0].Protocol))

	status, env, _ = srv.do(t, fiber.MethodPost, "/webhooks/whatsapp", body, signed)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &results))
	assert.True(t, results[0].Deduped)
	assert.Equal(t, 1, srv.store.CountCases())
}

func TestWhatsAppNonTextMessageUsesTypePlaceholder(t *testing.T) {
	srv := newTestServer(t)
	body := mustJSON(t, whatsAppPayload("wamid.img", "5586999990002", "image", ""))
	status, env, _ := srv.do(t, fiber.MethodPost, "/webhooks/whatsapp", body,
		map[string]string{"X-Hub-Signature-256": "sha256=" + hmacutil.Sign(metaSecret, body)})
	require.Equal(t, fiber.StatusOK, status)

	var results []struct {
		CaseID string `json:"case_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 1)
	thread, err := srv.store.Messages().ListByCase(context.Background(), results[0].CaseID)
	require.NoError(t, err)
	require.NotEmpty(t, thread)
	assert.Equal(t, "[image]", thread[0].Content)
}

func TestInstagramRelayRequiresAutomationSignature(t *testing.T) {
	srv := newTestServer(t)
	body := mustJSON(t, map[string]string{
		"instagram_user_id": "ig-77", "instagram_username": "bia", "text": "ola", "external_message_id": "ig.msg.1",
	})

	status, _, _ := srv.do(t, fiber.MethodPost, "/webhooks/instagram", body, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = srv.do(t, fiber.MethodPost, "/webhooks/instagram", body, map[string]string{automation.SignatureHeader: "00"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _, _ = srv.do(t, fiber.MethodPost, "/webhooks/instagram", body,
		map[string]string{automation.SignatureHeader: hmacutil.Sign(automationSecret, body)})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, srv.store.CountCases())
}

func TestPublicIntakeAndLookup(t *testing.T) {
	srv := newTestServer(t)

	status, env, _ := srv.do(t, fiber.MethodPost, "/public/cases", mustJSON(t, map[string]any{"full_name": "Ana"}), nil)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "consent")

	status, env, _ = srv.do(t, fiber.MethodPost, "/public/cases", mustJSON(t, map[string]any{
		"full_name": "Ana", "email": "ana@example.com", "phone_e164": "+5586999990003",
		"description": "calcada quebrada", "consent": true,
	}), nil)
	require.Equal(t, fiber.StatusCreated, status)
	var created struct {
		Protocol string `json:"protocol"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, env, _ = srv.do(t, fiber.MethodGet, "/public/cases/"+created.Protocol, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	var summary struct {
		Protocol string `json:"protocol"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, created.Protocol, summary.Protocol)
	assert.NotEmpty(t, summary.Status)

	status, _, _ = srv.do(t, fiber.MethodGet, "/public/cases/AAAA-AAAA-AAAA", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestPublicIntakeIsRateLimited(t *testing.T) {
	srv := newTestServer(t, withIntakeLimit(1))
	form := mustJSON(t, map[string]any{"full_name": "Ana"})

	status, _, _ := srv.do(t, fiber.MethodPost, "/public/cases", form, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, env, _ := srv.do(t, fiber.MethodPost, "/public/cases", form, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
	assert.EqualValues(t, 1, srv.metrics.Counter(observability.CounterRateLimited))

	var sawEvent bool
	for _, e := range srv.store.SecurityEvents() {
		sawEvent = sawEvent || e.Type == "rate_limit_exceeded"
	}
	assert.True(t, sawEvent)
}

func TestPublicIntakeCanBeDisabled(t *testing.T) {
	srv := newTestServer(t, withIntakeDisabled())
	status, _, _ := srv.do(t, fiber.MethodPost, "/public/cases", mustJSON(t, map[string]any{}), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestStaffRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)
	status, _, _ := srv.do(t, fiber.MethodGet, "/cases", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = srv.do(t, fiber.MethodGet, "/cases", nil, map[string]string{fiber.HeaderAuthorization: "Bearer junk"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = srv.do(t, fiber.MethodPost, "/auth/login", mustJSON(t, map[string]string{"email": "admin@city.gov", "password": "wrong"}), nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestStaffCaseFlowThroughAgentResult(t *testing.T) {
	srv := newTestServer(t)
	body := mustJSON(t, whatsAppPayload("wamid.flow", "5586999990004", "text", "lixo acumulado"))
	status, env, _ := srv.do(t, fiber.MethodPost, "/webhooks/whatsapp", body,
		map[string]string{"X-Hub-Signature-256": "sha256=" + hmacutil.Sign(metaSecret, body)})
	require.Equal(t, fiber.StatusOK, status)
	var results []struct {
		CaseID string `json:"case_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &results))
	caseID := results[0].CaseID

	status, env, _ = srv.do(t, fiber.MethodGet, "/cases", nil, srv.authed())
	require.Equal(t, fiber.StatusOK, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	status, _, _ = srv.do(t, fiber.MethodPatch, "/cases/"+caseID+"/priority", mustJSON(t, map[string]string{"priority": "urgent"}), srv.authed())
	assert.Equal(t, fiber.StatusOK, status)

	status, env, _ = srv.do(t, fiber.MethodPatch, "/cases/"+caseID+"/status", mustJSON(t, map[string]string{"status": "resolved"}), srv.authed())
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env, _ = srv.do(t, fiber.MethodPost, "/cases/"+caseID+"/agent/run", nil, srv.authed())
	require.Equal(t, fiber.StatusAccepted, status)
	var run struct {
		AgentRunID string `json:"agent_run_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &run))

	result := mustJSON(t, map[string]any{
		"agent_run_id": run.AgentRunID,
		"actions":      []any{map[string]any{"type": "set_priority", "priority": "high"}},
		"confidence":   0.9,
		"risk_level":   "low",
	})
	status, env, _ = srv.do(t, fiber.MethodPost, "/webhooks/automation/results", result,
		map[string]string{automation.SignatureHeader: hmacutil.Sign(automationSecret, result)})
	require.Equal(t, fiber.StatusOK, status)
	var outcome struct {
		Applied []string `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	assert.Equal(t, []string{service.ActionSetPriority}, outcome.Applied)

	status, env, _ = srv.do(t, fiber.MethodGet, "/cases/"+caseID+"/timeline", nil, srv.authed())
	require.Equal(t, fiber.StatusOK, status)
	var timeline struct {
		Entries []map[string]any `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &timeline))
	assert.NotEmpty(t, timeline.Entries)
}
