package led

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
	"go.uber.org/goleak"

	"github.com/mallhive/concierge/internal/emotion"
	"github.com/mallhive/concierge/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := New(baseURL, time.Second, log.NewNop())
	t.Cleanup(c.httpc.CloseIdleConnections)
	return c
}

func TestAnimateSendsPayload(t *testing.T) {
	type capture struct {
		method      string
		path        string
		contentType string
		body        map[string]any
	}
	var got capture

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Animate(context.Background(), emotion.Happy, "Good news!")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/emotion", got.path)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "happy", got.body["emotion"])
	assert.InDelta(t, 1.0, got.body["duration"], 1e-9)
	assert.Equal(t, "Good news!", got.body["text"])
}

func TestAnimateOmitsEmptyText(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		raw, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Animate(context.Background(), emotion.Thinking, ""))
	assert.NotContains(t, string(raw), `"text"`)
}

func TestAnimateDeviceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "serial port busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Animate(context.Background(), emotion.Sad, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "serial port busy")
}

func TestAnimateConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Animate(context.Background(), emotion.Neutral, "")
	assert.ErrorIs(t, err, ErrDevice)
}

func TestDeviceStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok","message":"device ready","usb_available":true,"device_found":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	st, err := c.DeviceStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, "device ready", st.Message)
	assert.True(t, st.USBAvailable)
	assert.True(t, st.DeviceFound)
	assert.True(t, st.Ready())
}

func TestStatusReady(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"ok and found", Status{Status: "ok", DeviceFound: true}, true},
		{"ok but missing", Status{Status: "ok", DeviceFound: false}, false},
		{"degraded", Status{Status: "error", DeviceFound: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Ready())
		})
	}
}

func TestReturnToDOA(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.ReturnToDOA(context.Background()))
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/doa", path)
}

func TestNewDefaults(t *testing.T) {
	c := New("http://localhost:8001/", 0, log.NewNop())
	assert.Equal(t, "http://localhost:8001", c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpc.Timeout)
}
