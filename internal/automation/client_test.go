package automation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ombudsman-service/pkg/util/hmacutil"
)

func TestNotifySignsBody(t *testing.T) {
	var body []byte
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second, nil)
	require.NoError(t, client.Notify(context.Background(), "case_created", map[string]string{"case_id": "c1"}))

	assert.True(t, hmacutil.Verify("secret", body, sig))
	var evt map[string]any
	require.NoError(t, json.Unmarshal(body, &evt))
	assert.Equal(t, "case_created", evt["event_type"])
	assert.True(t, client.Verify(body, sig))
}

func TestNotifyReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "secret", time.Second, nil).Notify(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestNotifyDisabledWithoutEndpoint(t *testing.T) {
	client := NewClient("", "secret", 0, nil)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Notify(context.Background(), "x", nil))
}
