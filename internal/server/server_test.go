package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/operations-host/internal/config"
	"github.com/morezero/operations-host/pkg/events"
	"github.com/morezero/operations-host/pkg/manifest"
	"github.com/morezero/operations-host/pkg/natsbridge"
)

const serverTestPrefix = "server:server_test"

// testConfig mirrors the environment defaults.
func testConfig() *config.Config {
	return &config.Config{
		HTTPAddrs:           []string{"127.0.0.1:0"},
		MetadataPath:        "/metadata",
		MetricsPath:         "/metrics",
		HealthPath:          "/health",
		HomePath:            "/",
		MaxBodyBytes:        1 << 20,
		ShutdownTimeout:     5 * time.Second,
		APIVersion:          "1.0.0",
		COMMSName:           "opshost-test",
		COMMSSubjectPrefix:  "ops",
		COMMSFailureSubject: "ops.failures",
		COMMSRequestTimeout: 5 * time.Second,
		RateLimitBurst:      20,
		JWTSkipPaths:        []string{"/health", "/metadata"},
		LogLevel:            "info",
	}
}

func testServer(t *testing.T, cfg *config.Config, m *manifest.Manifest) *httptest.Server {
	t.Helper()
	if m == nil {
		m = manifest.Default()
	}
	h, err := BuildHost(cfg, m)
	if err != nil {
		t.Fatalf("%s - BuildHost error: %v", serverTestPrefix, err)
	}
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func send(t *testing.T, method, url string, header map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("%s - new request: %v", serverTestPrefix, err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s - %s %s error: %v", serverTestPrefix, method, url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestBuildHost_ServesDemo(t *testing.T) {
	srv := testServer(t, testConfig(), nil)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/sayhi", http.StatusOK, "Hello"},
		{"/add?a=2&b=3", http.StatusOK, "5"},
		{"/", http.StatusOK, "Operations Host"},
		{"/health", http.StatusOK, `"heartbeat"`},
		{"/metadata", http.StatusOK, `"whoami"`},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := send(t, http.MethodGet, srv.URL+tt.path, nil)
			if status != tt.status || !strings.Contains(strings.ToLower(body), strings.ToLower(tt.contains)) {
				t.Errorf("%s - GET %s = %d %s", serverTestPrefix, tt.path, status, body)
			}
		})
	}

	status, body := send(t, http.MethodGet, srv.URL+"/metrics", nil)
	if status != http.StatusOK || !strings.Contains(body, `opshost_requests_total{outcome="ok",route="/sayhi"} 1`) {
		t.Errorf("%s - /metrics = %d\n%s", serverTestPrefix, status, body)
	}
}

func TestBuildHost_Hooks(t *testing.T) {
	t.Run("bearer auth", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWTSecret = "secret"
		srv := testServer(t, cfg, nil)

		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", nil); status != http.StatusUnauthorized {
			t.Errorf("%s - unauthenticated /sayhi = %d, want 401", serverTestPrefix, status)
		}
		if status, _ := send(t, http.MethodGet, srv.URL+"/metadata", nil); status != http.StatusOK {
			t.Errorf("%s - skipped /metadata = %d, want 200", serverTestPrefix, status)
		}
	})

	t.Run("rate limit", func(t *testing.T) {
		cfg := testConfig()
		cfg.RateLimitRPS, cfg.RateLimitBurst = 0.001, 1
		srv := testServer(t, cfg, nil)

		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", nil); status != http.StatusOK {
			t.Fatalf("%s - first request = %d", serverTestPrefix, status)
		}
		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", nil); status != http.StatusTooManyRequests {
			t.Errorf("%s - second request = %d, want 429", serverTestPrefix, status)
		}
	})

	t.Run("rate limit per subject", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWTSecret = "secret"
		cfg.RateLimitRPS, cfg.RateLimitBurst = 0.001, 1
		srv := testServer(t, cfg, nil)

		bearer := func(sub string) map[string]string {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte("secret"))
			if err != nil {
				t.Fatalf("%s - sign token: %v", serverTestPrefix, err)
			}
			return map[string]string{"Authorization": "Bearer " + token}
		}
		ada, bob := bearer("ada"), bearer("bob")

		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", ada); status != http.StatusOK {
			t.Fatalf("%s - ada first request = %d", serverTestPrefix, status)
		}
		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", bob); status != http.StatusOK {
			t.Errorf("%s - bob shares ada's bucket, status = %d", serverTestPrefix, status)
		}
		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", ada); status != http.StatusTooManyRequests {
			t.Errorf("%s - ada second request = %d, want 429", serverTestPrefix, status)
		}
	})

	t.Run("version gate", func(t *testing.T) {
		srv := testServer(t, testConfig(), nil)
		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", map[string]string{"X-Api-Version": "2"}); status != http.StatusPreconditionFailed {
			t.Errorf("%s - version 2 = %d, want 412", serverTestPrefix, status)
		}
		if status, _ := send(t, http.MethodGet, srv.URL+"/sayhi", map[string]string{"X-Api-Version": "1"}); status != http.StatusOK {
			t.Errorf("%s - version 1 = %d, want 200", serverTestPrefix, status)
		}
	})
}

func TestBuildHost_ManifestOverrides(t *testing.T) {
	tests := []struct {
		name     string
		override manifest.TaskOverride
		check    func(t *testing.T, tasks []map[string]any)
	}{
		{"disabled", manifest.TaskOverride{Disabled: true}, func(t *testing.T, tasks []map[string]any) {
			if len(tasks) != 0 {
				t.Errorf("%s - tasks = %v, want none", serverTestPrefix, tasks)
			}
		}},
		{"cron", manifest.TaskOverride{Cron: "@every 1h"}, func(t *testing.T, tasks []map[string]any) {
			if len(tasks) != 1 || tasks[0]["cronSpec"] != "@every 1h" {
				t.Errorf("%s - tasks = %v", serverTestPrefix, tasks)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifest.Default()
			m.Tasks["heartbeat"] = tt.override
			srv := testServer(t, testConfig(), m)

			_, body := send(t, http.MethodGet, srv.URL+"/health", nil)
			var health struct {
				Tasks []map[string]any `json:"tasks"`
			}
			if err := json.Unmarshal([]byte(body), &health); err != nil {
				t.Fatalf("%s - health decode: %v (%s)", serverTestPrefix, err, body)
			}
			tt.check(t, health.Tasks)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.APIVersion = "not-a-version"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Errorf("%s - expected validation error", serverTestPrefix)
	}
}

func TestNew_JournalUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.JournalEnabled = true
	cfg.DatabaseURL = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=2"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := New(ctx, cfg); err == nil {
		t.Errorf("%s - expected database error", serverTestPrefix)
	}
}

func startCommsServer(t *testing.T) string {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", serverTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", serverTestPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestServer_CommsLifecycle(t *testing.T) {
	url := startCommsServer(t)
	cfg := testConfig()
	cfg.COMMSEnabled = true
	cfg.COMMSURL = url

	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("%s - New error: %v", serverTestPrefix, err)
	}
	if err := s.Start(); err != nil {
		s.Shutdown(context.Background())
		t.Fatalf("%s - Start error: %v", serverTestPrefix, err)
	}
	stopped := false
	t.Cleanup(func() {
		if !stopped {
			s.Shutdown(context.Background())
		}
	})

	client, err := comms.Connect(url, comms.Timeout(5*time.Second))
	if err != nil {
		t.Fatalf("%s - client connect: %v", serverTestPrefix, err)
	}
	defer client.Close()

	failures := make(chan *events.FailureEvent, 1)
	sub, err := client.Subscribe("ops.failures.request", func(msg *comms.Msg) {
		var ev events.FailureEvent
		if json.Unmarshal(msg.Data, &ev) == nil {
			failures <- &ev
		}
	})
	if err != nil {
		t.Fatalf("%s - subscribe: %v", serverTestPrefix, err)
	}
	defer sub.Unsubscribe()
	if err := client.Flush(); err != nil {
		t.Fatalf("%s - flush: %v", serverTestPrefix, err)
	}

	request := func(subject, params string) *natsbridge.Response {
		t.Helper()
		data, _ := json.Marshal(&natsbridge.Request{ID: "t", Params: json.RawMessage(params)})
		msg, err := client.Request(subject, data, 5*time.Second)
		if err != nil {
			t.Fatalf("%s - request %s: %v", serverTestPrefix, subject, err)
		}
		var resp natsbridge.Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			t.Fatalf("%s - decode: %v", serverTestPrefix, err)
		}
		return &resp
	}

	if resp := request("ops.add", `{"a":2,"b":3}`); !resp.Ok || string(resp.Result) != "5" {
		t.Errorf("%s - ops.add = %+v", serverTestPrefix, resp)
	}

	if resp := request("ops.repeat", `{"text":"x","times":1000}`); resp.Ok || resp.Status != http.StatusInternalServerError {
		t.Errorf("%s - ops.repeat = %+v", serverTestPrefix, resp)
	}
	select {
	case ev := <-failures:
		if ev.Route != "/repeat" || ev.Service != "opshost-test" || ev.Status != http.StatusInternalServerError {
			t.Errorf("%s - failure event = %+v", serverTestPrefix, ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no failure event published", serverTestPrefix)
	}

	status, _ := send(t, http.MethodGet, "http://"+s.Handle().Addrs()[0].String()+"/sayhi", nil)
	if status != http.StatusOK {
		t.Errorf("%s - HTTP /sayhi = %d", serverTestPrefix, status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopped = true
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("%s - Shutdown error: %v", serverTestPrefix, err)
	}
}
