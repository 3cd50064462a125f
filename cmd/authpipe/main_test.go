package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/apitest"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authpipe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestLoadConfigDefaults(t *testing.T) {
	config, logger, err := loadConfig("", nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected logger")
	}
	if config.Session.Backend != string(authpipe.BackendFile) {
		t.Fatalf("expected file backend by default, got %q", config.Session.Backend)
	}
	if config.Refresh.Endpoint != "/auth/refresh" || config.Refresh.Timeout != 10*time.Second {
		t.Fatalf("unexpected refresh defaults: %+v", config.Refresh)
	}

	cc := config.clientConfig()
	if err := cc.Validate(); err != nil {
		t.Fatalf("default client config invalid: %v", err)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
base_url: http://api.example.test
logging:
  level: warn
  format: json
session:
  backend: memory
refresh:
  request_field: token
  proactive: true
  skew: 5s
teardown:
  login_path: /signin
`)
	t.Setenv("AUTHPIPE_REFRESH_TIMEOUT", "3s")
	t.Setenv("AUTHPIPE_LOGIN_ENDPOINT", "/session")

	config, logger, err := loadConfig(path, nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	cc := config.clientConfig()
	if cc.Transport.BaseURL != "http://api.example.test" {
		t.Fatalf("base url from file: got %q", cc.Transport.BaseURL)
	}
	if cc.Refresh.Timeout != 3*time.Second {
		t.Fatalf("refresh timeout from env: got %s", cc.Refresh.Timeout)
	}
	if cc.Login.Endpoint != "/session" {
		t.Fatalf("login endpoint from env: got %q", cc.Login.Endpoint)
	}
	if cc.Refresh.RequestField != "token" || !cc.Refresh.ProactiveEnabled || cc.Refresh.ProactiveSkew != 5*time.Second {
		t.Fatalf("refresh section from file: %+v", cc.Refresh)
	}
	if cc.Teardown.LoginPath != "/signin" || cc.Teardown.ReturnParam != "next" {
		t.Fatalf("teardown section: %+v", cc.Teardown)
	}
	if cc.Session.Backend != authpipe.BackendMemory {
		t.Fatalf("session backend: %q", cc.Session.Backend)
	}
	if logger.GetLevel().String() != "warning" {
		t.Fatalf("log level: %s", logger.GetLevel())
	}
	if err := cc.Validate(); err != nil {
		t.Fatalf("client config invalid: %v", err)
	}
}

func TestLoadConfigBadLogLevel(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: loud\n")
	if _, _, err := loadConfig(path, nil); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestCommandsAgainstFakeAPI(t *testing.T) {
	apiLog, _ := test.NewNullLogger()
	api, err := apitest.New(apitest.Config{Logger: apiLog})
	if err != nil {
		t.Fatalf("apitest.New: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	sessionFile := filepath.Join(t.TempDir(), "session.yaml")
	path := writeConfig(t, "logging:\n  level: error\nsession:\n  backend: file\n  file: "+sessionFile+"\n")

	out, err := execute(t, "--config", path, "--base-url", srv.URL, "login", "-u", "alice", "-p", "wonderland")
	if err != nil || !strings.Contains(out, "logged in as alice") {
		t.Fatalf("login: err=%v out=%q", err, out)
	}
	if _, err := os.Stat(sessionFile); err != nil {
		t.Fatalf("session file not written: %v", err)
	}

	out, err = execute(t, "--config", path, "--base-url", srv.URL, "request", "/api/whoami")
	if err != nil || !strings.Contains(out, `"subject":"alice"`) {
		t.Fatalf("request: err=%v out=%q", err, out)
	}

	api.ExpireAccessTokens()
	out, err = execute(t, "--config", path, "--base-url", srv.URL, "request", "/api/whoami")
	if err != nil || !strings.Contains(out, `"subject":"alice"`) {
		t.Fatalf("request after expiry: err=%v out=%q", err, out)
	}
	if api.RefreshCalls() != 1 {
		t.Fatalf("expected 1 refresh call, got %d", api.RefreshCalls())
	}

	out, err = execute(t, "--config", path, "--base-url", srv.URL, "status")
	if err != nil || !strings.Contains(out, "logged in (file backend)") {
		t.Fatalf("status: err=%v out=%q", err, out)
	}

	out, err = execute(t, "--config", path, "--base-url", srv.URL, "logout")
	if err != nil || !strings.Contains(out, "logged out") {
		t.Fatalf("logout: err=%v out=%q", err, out)
	}
	out, err = execute(t, "--config", path, "--base-url", srv.URL, "status")
	if err != nil || !strings.Contains(out, "not logged in") {
		t.Fatalf("status after logout: err=%v out=%q", err, out)
	}
}

func TestRequestAfterRevocationEndsSession(t *testing.T) {
	apiLog, _ := test.NewNullLogger()
	api, err := apitest.New(apitest.Config{Logger: apiLog})
	if err != nil {
		t.Fatalf("apitest.New: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	sessionFile := filepath.Join(t.TempDir(), "session.yaml")
	path := writeConfig(t, "logging:\n  level: error\nsession:\n  backend: file\n  file: "+sessionFile+"\n")

	if _, err := execute(t, "--config", path, "--base-url", srv.URL, "login", "-u", "alice", "-p", "wonderland"); err != nil {
		t.Fatalf("login: %v", err)
	}

	api.RevokeSessions()
	out, err := execute(t, "--config", path, "--base-url", srv.URL, "request", "/api/whoami")
	if err == nil {
		t.Fatalf("expected error after revocation, out=%q", out)
	}
	if !strings.Contains(out, "session ended; sign in again at /login?next=%2Fapi%2Fwhoami") {
		t.Fatalf("expected teardown navigation, out=%q", out)
	}
}

func TestBuildRequestParsesFlags(t *testing.T) {
	cmd := requestCmd
	if err := cmd.Flags().Parse([]string{"-d", `{"a":1}`, "-H", "X-Trace: abc", "--query", "page=2"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Flags().Set("data", "")
	})

	req, err := buildRequest(cmd, []string{"post", "/api/echo"})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/echo" {
		t.Fatalf("unexpected method/path: %s %s", req.Method, req.Path)
	}
	if req.Header["X-Trace"] != "abc" || req.Header["Content-Type"] != "application/json" {
		t.Fatalf("unexpected headers: %v", req.Header)
	}
	if req.Query["page"] != "2" {
		t.Fatalf("unexpected query: %v", req.Query)
	}

	if _, err := buildRequest(cmd, []string{"api/echo"}); err == nil {
		t.Fatalf("expected error for relative path")
	}
}
