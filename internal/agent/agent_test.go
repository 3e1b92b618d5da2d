package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mallhive/concierge/internal/config"
	"github.com/mallhive/concierge/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func testConfig(baseURL string) config.AgentConfig {
	return config.AgentConfig{
		BaseURL:        baseURL,
		AppID:          "app123",
		CustomerKey:    "ck-key",
		CustomerSecret: "cs-secret",
		Channel:        "mall-lobby",
		Token:          "rtc-token",
		AgentRTCUID:    "1001",
		RemoteRTCUIDs:  []string{"1002"},
		IdleTimeout:    120,
		MaxHistory:     32,
		RelayURL:       "https://concierge.example.com/chat/completions",
		LLMModel:       "llama-3.3-70b-versatile",
		TTSAPIKey:      "tts-key",
		TTSModel:       "playai-tts",
		TTSVoice:       "Arista-PlayAI",
		ASRAPIKey:      "asr-key",
		ASRLanguage:    "en-US",
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := New(testConfig(baseURL), log.NewNop())
	t.Cleanup(c.httpc.CloseIdleConnections)
	return c
}

func TestJoinSendsFullPayload(t *testing.T) {
	var (
		gotPath string
		gotUser string
		gotPass string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var ok bool
		gotUser, gotPass, ok = r.BasicAuth()
		require.True(t, ok, "expected basic auth")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"agent_id":"A42AC47HM54EV67MM93MC94VN86NR36T","status":"RUNNING","create_ts":1766500000}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	session, err := c.Join(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/projects/app123/join", gotPath)
	assert.Equal(t, "ck-key", gotUser)
	assert.Equal(t, "cs-secret", gotPass)

	assert.Equal(t, "A42AC47HM54EV67MM93MC94VN86NR36T", session.AgentID)
	assert.Equal(t, "RUNNING", session.Status)
	assert.Equal(t, int64(1766500000), session.CreateTS)

	assert.Equal(t, "rag_agent_with_emotions", gotBody["name"])

	props, ok := gotBody["properties"].(map[string]any)
	require.True(t, ok, "properties missing")
	assert.Equal(t, "mall-lobby", props["channel"])
	assert.Equal(t, "rtc-token", props["token"])
	assert.Equal(t, "1001", props["agent_rtc_uid"])
	assert.Equal(t, []any{"1002"}, props["remote_rtc_uids"])
	assert.InDelta(t, 120, props["idle_timeout"], 1e-9)

	features, ok := props["advanced_features"].(map[string]any)
	require.True(t, ok, "advanced_features missing")
	assert.Equal(t, true, features["enable_aivad"])
	assert.Equal(t, true, features["enable_rtm"])

	params, ok := props["parameters"].(map[string]any)
	require.True(t, ok, "parameters missing")
	assert.Equal(t, "rtm", params["data_channel"])

	llm, ok := props["llm"].(map[string]any)
	require.True(t, ok, "llm missing")
	assert.Equal(t, "https://concierge.example.com/chat/completions", llm["url"])
	assert.Equal(t, "", llm["api_key"])
	assert.InDelta(t, 32, llm["max_history"], 1e-9)
	assert.Contains(t, llm["greeting_message"], "[welcoming]")
	assert.Contains(t, llm["failure_message"], "[thinking]")

	sysMsgs, ok := llm["system_messages"].([]any)
	require.True(t, ok, "system_messages missing")
	require.Len(t, sysMsgs, 1)
	sys := sysMsgs[0].(map[string]any)
	assert.Equal(t, "system", sys["role"])
	assert.Contains(t, sys["content"], "tour guide for Central City Mall")

	llmParams, ok := llm["params"].(map[string]any)
	require.True(t, ok, "llm params missing")
	assert.Equal(t, "llama-3.3-70b-versatile", llmParams["model"])

	tts, ok := props["tts"].(map[string]any)
	require.True(t, ok, "tts missing")
	assert.Equal(t, "groq", tts["vendor"])
	assert.Equal(t, []any{float64(4)}, tts["skip_patterns"])
	ttsParams := tts["params"].(map[string]any)
	assert.Equal(t, "tts-key", ttsParams["api_key"])
	assert.Equal(t, "playai-tts", ttsParams["model"])
	assert.Equal(t, "Arista-PlayAI", ttsParams["voice"])

	asr, ok := props["asr"].(map[string]any)
	require.True(t, ok, "asr missing")
	assert.Equal(t, "assemblyai", asr["vendor"])
	asrParams := asr["params"].(map[string]any)
	assert.Equal(t, "asr-key", asrParams["api_key"])
	assert.Equal(t, "en-US", asrParams["language"])
}

func TestJoinUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	session, err := c.Join(context.Background())
	require.Error(t, err)
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrProvision)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestJoinConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Join(context.Background())
	assert.ErrorIs(t, err, ErrProvision)
}

func TestLeave(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Leave(context.Background(), "A42AC47HM54EV67MM93MC94VN86NR36T")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/projects/app123/agents/A42AC47HM54EV67MM93MC94VN86NR36T/leave", gotPath)
	assert.Empty(t, gotBody)
}

func TestLeaveRequiresAgentID(t *testing.T) {
	c := New(testConfig("https://api.example.com"), log.NewNop())
	err := c.Leave(context.Background(), "")
	assert.ErrorIs(t, err, ErrProvision)
	assert.Contains(t, err.Error(), "agent id required")
}

func TestNewTrimsBaseURL(t *testing.T) {
	cfg := testConfig("https://api.example.com/api/conversational-ai-agent/v2/")
	c := New(cfg, log.NewNop())
	assert.False(t, strings.HasSuffix(c.cfg.BaseURL, "/"))
}
