package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Channels   ChannelConfig
	Automation AutomationConfig
	Agent      AgentConfig
	Routing    RoutingConfig
	RBAC       RBACConfig
	SLA        SLAConfig
	Public     PublicConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int

	// Seeded on startup when running without postgres.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// ChannelConfig holds credentials for the messaging providers.
type ChannelConfig struct {
	GraphBaseURL           string
	WhatsAppPhoneNumberID  string
	WhatsAppAccessToken    string
	WhatsAppVerifyToken    string
	MetaAppSecret          string
	InstagramPageID        string
	InstagramAccessToken   string
	OutboundTimeoutSeconds int
}

// AutomationConfig points to the external automation workflow endpoint.
type AutomationConfig struct {
	EndpointURL    string
	HMACSecret     string
	TimeoutSeconds int
}

// AgentConfig bounds what the automation agent may do on its own.
type AgentConfig struct {
	AllowedActions        []string
	AutoSendEnabled       bool
	HandoffThreshold      float64
	EscalationSecretariat string
	EscalationQueueSlug   string
}

// RoutingConfig holds routing defaults.
type RoutingConfig struct {
	TriageQueueSlug string
}

// RBACConfig controls legacy visibility behavior.
type RBACConfig struct {
	GlobalSecretariatCodes []string
	LegacyGlobalAccess     bool
}

// SLAConfig controls the breach timer.
type SLAConfig struct {
	DefaultHours        int
	PollIntervalSeconds int
}

// PublicConfig governs unauthenticated citizen endpoints.
type PublicConfig struct {
	IntakeEnabled        bool
	IntakeLimitPerHour   int
	LookupLimitPerMinute int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	threshold, err := strconv.ParseFloat(getEnv("AGENT_HANDOFF_THRESHOLD", "0.7"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AGENT_HANDOFF_THRESHOLD: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ombudsman-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ombudsman"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminEmail:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Channels: ChannelConfig{
			GraphBaseURL:           getEnv("CHANNEL_GRAPH_BASE_URL", "https://graph.facebook.com/v18.0"),
			WhatsAppPhoneNumberID:  os.Getenv("CHANNEL_WHATSAPP_PHONE_NUMBER_ID"),
			WhatsAppAccessToken:    os.Getenv("CHANNEL_WHATSAPP_ACCESS_TOKEN"),
			WhatsAppVerifyToken:    os.Getenv("CHANNEL_WHATSAPP_VERIFY_TOKEN"),
			MetaAppSecret:          os.Getenv("CHANNEL_META_APP_SECRET"),
			InstagramPageID:        os.Getenv("CHANNEL_INSTAGRAM_PAGE_ID"),
			InstagramAccessToken:   os.Getenv("CHANNEL_INSTAGRAM_ACCESS_TOKEN"),
			OutboundTimeoutSeconds: getEnvAsInt("CHANNEL_OUTBOUND_TIMEOUT_SECONDS", 10),
		},
		Automation: AutomationConfig{
			EndpointURL:    os.Getenv("AUTOMATION_ENDPOINT_URL"),
			HMACSecret:     os.Getenv("AUTOMATION_HMAC_SECRET"),
			TimeoutSeconds: getEnvAsInt("AUTOMATION_TIMEOUT_SECONDS", 5),
		},
		Agent: AgentConfig{
			AllowedActions:        getEnvAsList("AGENT_ALLOWED_ACTIONS"),
			AutoSendEnabled:       getEnvAsBool("AGENT_AUTO_SEND_ENABLED", false),
			HandoffThreshold:      threshold,
			EscalationSecretariat: getEnv("AGENT_ESCALATION_SECRETARIAT_CODE", "OUVIDORIA_CENTRAL"),
			EscalationQueueSlug:   getEnv("AGENT_ESCALATION_QUEUE_SLUG", "DENUNCIAS_SENSIVEIS"),
		},
		Routing: RoutingConfig{
			TriageQueueSlug: getEnv("ROUTING_TRIAGE_QUEUE_SLUG", "triagem"),
		},
		RBAC: RBACConfig{
			GlobalSecretariatCodes: getEnvAsListDefault("RBAC_GLOBAL_SECRETARIAT_CODES", []string{"GABINETE_PREFEITO", "SECRETARIA_GOVERNO"}),
			LegacyGlobalAccess:     getEnvAsBool("RBAC_LEGACY_GLOBAL_ACCESS", true),
		},
		SLA: SLAConfig{
			DefaultHours:        getEnvAsInt("SLA_DEFAULT_HOURS", 48),
			PollIntervalSeconds: getEnvAsInt("SLA_POLL_INTERVAL_SECONDS", 30),
		},
		Public: PublicConfig{
			IntakeEnabled:        getEnvAsBool("PUBLIC_INTAKE_ENABLED", true),
			IntakeLimitPerHour:   getEnvAsInt("PUBLIC_INTAKE_LIMIT_PER_HOUR", 10),
			LookupLimitPerMinute: getEnvAsInt("PUBLIC_LOOKUP_LIMIT_PER_MINUTE", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns how often due SLA timers are drained.
func (s SLAConfig) PollInterval() time.Duration {
	if s.PollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	return getEnvAsListDefault(key, nil)
}

func getEnvAsListDefault(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
