package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/pkg/provider"
)

const pongBody = `{"choices":[{"message":{"content":"pong"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

// fakeProvider 假的 AI Provider
func fakeProvider(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func pongProvider(t *testing.T) *httptest.Server {
	return fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(pongBody))
	})
}

func statusProvider(t *testing.T, code int) *httptest.Server {
	return fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		w.Write([]byte("upstream exploded"))
	})
}

// hangingProvider 一直挂起直到客户端断开
func hangingProvider(t *testing.T) *httptest.Server {
	return fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	})
}

// closedURL 一个已关闭端口的地址，连接会被拒绝
func closedURL(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AIProvider.URL = ""
	cfg.AIProvider.APIKey = ""
	return cfg
}

func newTestRunner(cfg *config.Config) *TargetRunner {
	return NewTargetRunner(provider.NewClient(nil), NewSettingsService(nil, cfg), cfg)
}
