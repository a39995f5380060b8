package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ruleSet = `
rules:
  - id: iluminacao
    name: Street lights
    priority: 10
    conditions:
      all:
        - {field: channel, op: eq, value: whatsapp}
        - {field: message.text, op: contains, value: poste}
    actions:
      - {type: set_queue_by_meta, target_queue_slug: iluminacao}
  - id: triagem
    name: Fallback
    fallback: true
    conditions: {all: []}
    actions:
      - {type: set_priority, value: normal}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunSingleMessage(t *testing.T) {
	rules := writeFile(t, "rules.yaml", ruleSet)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-rules", rules, "-text", "o poste caiu"}, &out))

	var v verdict
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.True(t, v.Matched)
	require.NotNil(t, v.RuleID)
	assert.Equal(t, "iluminacao", *v.RuleID)
}

func TestRunSamplesFile(t *testing.T) {
	rules := writeFile(t, "rules.yaml", ruleSet)
	samples := writeFile(t, "samples.yaml", `
- {channel: whatsapp, text: "poste apagado"}
- {channel: instagram, text: "poste apagado"}
`)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-rules", rules, "-samples", samples}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var second verdict
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NotNil(t, second.RuleID)
	assert.Equal(t, "triagem", *second.RuleID, "non-whatsapp traffic falls back")
}

func TestRunRequiresInputs(t *testing.T) {
	assert.ErrorContains(t, run(nil, &bytes.Buffer{}), "-rules")
	rules := writeFile(t, "rules.yaml", ruleSet)
	assert.ErrorContains(t, run([]string{"-rules", rules}, &bytes.Buffer{}), "-samples or -text")
}
