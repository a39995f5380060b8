package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_DB", "")
	t.Setenv("AGENT_HANDOFF_THRESHOLD", "")
	t.Setenv("AGENT_ALLOWED_ACTIONS", "")
	t.Setenv("RBAC_GLOBAL_SECRETARIAT_CODES", "")
	t.Setenv("REDIS_KEY_PREFIX", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Agent.HandoffThreshold)
	assert.False(t, cfg.Agent.AutoSendEnabled)
	assert.Empty(t, cfg.Agent.AllowedActions)
	assert.Equal(t, []string{"GABINETE_PREFEITO", "SECRETARIA_GOVERNO"}, cfg.RBAC.GlobalSecretariatCodes)
	assert.Equal(t, 48, cfg.SLA.DefaultHours)
	assert.Equal(t, "triagem", cfg.Routing.TriageQueueSlug)
	assert.Equal(t, "ombudsman", cfg.Redis.KeyPrefix)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_ALLOWED_ACTIONS", "set_tags, reply_external,,")
	t.Setenv("AGENT_AUTO_SEND_ENABLED", "true")
	t.Setenv("AGENT_HANDOFF_THRESHOLD", "0.55")
	t.Setenv("SLA_POLL_INTERVAL_SECONDS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"set_tags", "reply_external"}, cfg.Agent.AllowedActions)
	assert.True(t, cfg.Agent.AutoSendEnabled)
	assert.Equal(t, 0.55, cfg.Agent.HandoffThreshold)
	assert.Equal(t, 5*time.Second, cfg.SLA.PollInterval())
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("REDIS_DB", "0")
	t.Setenv("AGENT_HANDOFF_THRESHOLD", "high")
	_, err = Load()
	require.Error(t, err)
}
