package apitest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studyclub/authpipe/internal/tokens"
	"github.com/studyclub/authpipe/jwt"
	"github.com/studyclub/authpipe/middleware"
)

// RefreshMode selects how the refresh endpoints answer.
type RefreshMode int

const (
	// RefreshOK rotates or reissues tokens normally.
	RefreshOK RefreshMode = iota
	// RefreshRejected answers 401 (JSON) or invalid_grant (OAuth2).
	RefreshRejected
	// RefreshMalformed answers 400 (JSON) or invalid_request (OAuth2).
	RefreshMalformed
	// RefreshServerError answers 503.
	RefreshServerError
)

// Config configures an API.
type Config struct {
	// Users maps usernames to passwords. Defaults to alice/wonderland.
	Users     map[string]string
	AccessTTL time.Duration
	// KeepRefreshToken disables refresh token rotation; refresh responses
	// then omit the refresh token.
	KeepRefreshToken bool
	SigningKey       []byte
	Logger           logrus.FieldLogger
}

type sessionRecord struct {
	subject    string
	secretHash [32]byte
}

// API is an in-process auth server with a few protected resources.
type API struct {
	jwt    *jwt.Manager
	log    logrus.FieldLogger
	users  map[string]string
	rotate bool

	mu          sync.Mutex
	sessions    map[string]*sessionRecord
	generation  uint64
	refreshMode RefreshMode
	gate        chan struct{}

	refreshCalls atomic.Int64
	loginCalls   atomic.Int64
}

// New builds an API.
func New(cfg Config) (*API, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = []byte("apitest-signing-key-do-not-use-in-prod")
	}
	if cfg.Users == nil {
		cfg.Users = map[string]string{"alice": "wonderland"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.SigningKey,
		Issuer:        "apitest",
	})
	if err != nil {
		return nil, err
	}

	users := make(map[string]string, len(cfg.Users))
	for k, v := range cfg.Users {
		users[k] = v
	}

	return &API{
		jwt:      m,
		log:      cfg.Logger.WithField("component", "apitest"),
		users:    users,
		rotate:   !cfg.KeepRefreshToken,
		sessions: make(map[string]*sessionRecord),
	}, nil
}

// Handler returns the HTTP surface:
//
//	POST /auth/login      {"username","password"} -> {"access","refresh"}
//	POST /auth/refresh    {"refresh"} -> {"access","refresh"}
//	POST /oauth/token     refresh_token and password grants
//	GET  /api/whoami      guarded; echoes subject and token
//	POST /api/echo        guarded; echoes the request body
//	GET  /api/forbidden   guarded; always 403
//	GET  /api/public      anonymous
func (a *API) Handler() http.Handler {
	guard := middleware.RequireStrict(a.jwt, a.checkLive)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", a.handleLogin)
	mux.HandleFunc("POST /auth/refresh", a.handleRefresh)
	mux.HandleFunc("POST /oauth/token", a.handleOAuthToken)
	mux.Handle("GET /api/whoami", guard(http.HandlerFunc(a.handleWhoami)))
	mux.Handle("POST /api/echo", guard(http.HandlerFunc(a.handleEcho)))
	mux.Handle("GET /api/forbidden", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	})))
	mux.HandleFunc("GET /api/public", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// IssueSession creates a session for subject without a login call.
func (a *API) IssueSession(subject string) (access, refresh string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issueLocked(subject)
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (a *API) ExpireAccessTokens() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
}

// RevokeSessions forgets every session, so refresh tokens are rejected
// and access tokens stop validating.
func (a *API) RevokeSessions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = make(map[string]*sessionRecord)
}

func (a *API) SetRefreshMode(mode RefreshMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshMode = mode
}

// HoldRefresh makes refresh requests block until the returned release
// function is called. Calling release more than once is safe.
func (a *API) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.gate = gate
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			if a.gate == gate {
				a.gate = nil
			}
			a.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshCalls counts requests that reached a refresh endpoint.
func (a *API) RefreshCalls() int {
	return int(a.refreshCalls.Load())
}

func (a *API) LoginCalls() int {
	return int(a.loginCalls.Load())
}

// Sessions returns the number of live server-side sessions.
func (a *API) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// VerifyAccess implements middleware.Verifier with the same checks the
// guarded routes apply.
func (a *API) VerifyAccess(ctx context.Context, token string) (middleware.Principal, error) {
	return middleware.JWTVerifier{Manager: a.jwt, Check: a.checkLive}.VerifyAccess(ctx, token)
}

var (
	errStaleGeneration = errors.New("access token generation expired")
	errUnknownSession  = errors.New("unknown session")
)

func (a *API) checkLive(_ context.Context, claims *jwt.AccessClaims) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if claims.Generation != a.generation {
		return errStaleGeneration
	}
	if _, ok := a.sessions[claims.SID]; !ok {
		return errUnknownSession
	}
	return nil
}

// caller holds a.mu
func (a *API) issueLocked(subject string) (string, string, error) {
	sid, err := tokens.NewSessionID()
	if err != nil {
		return "", "", err
	}
	secret, err := tokens.NewSecret()
	if err != nil {
		return "", "", err
	}
	access, err := a.jwt.Issue(jwt.Grant{Subject: subject, SessionID: sid.String(), Generation: a.generation})
	if err != nil {
		return "", "", err
	}
	a.sessions[sid.String()] = &sessionRecord{subject: subject, secretHash: secret.Hash()}
	return access, tokens.Encode(sid, secret), nil
}

type refreshOutcome struct {
	access  string
	refresh string
	mode    RefreshMode
}

// exchange validates refreshToken and issues new tokens. The returned mode
// is RefreshOK on success, otherwise the failure to report.
func (a *API) exchange(ctx context.Context, refreshToken string) refreshOutcome {
	a.refreshCalls.Add(1)

	a.mu.Lock()
	gate := a.gate
	a.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return refreshOutcome{mode: RefreshServerError}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.refreshMode != RefreshOK {
		return refreshOutcome{mode: a.refreshMode}
	}

	sid, secret, err := tokens.Decode(refreshToken)
	if err != nil {
		return refreshOutcome{mode: RefreshMalformed}
	}
	rec, ok := a.sessions[sid.String()]
	if !ok {
		return refreshOutcome{mode: RefreshRejected}
	}
	hash := secret.Hash()
	if subtle.ConstantTimeCompare(hash[:], rec.secretHash[:]) != 1 {
		// Presenting a rotated-out token revokes the whole session.
		delete(a.sessions, sid.String())
		a.log.WithField("sid", sid.String()).Warn("refresh token reuse detected")
		return refreshOutcome{mode: RefreshRejected}
	}

	out := refreshOutcome{mode: RefreshOK}
	if a.rotate {
		next, err := tokens.NewSecret()
		if err != nil {
			return refreshOutcome{mode: RefreshServerError}
		}
		rec.secretHash = next.Hash()
		out.refresh = tokens.Encode(sid, next)
	}
	out.access, err = a.jwt.Issue(jwt.Grant{Subject: rec.subject, SessionID: sid.String(), Generation: a.generation})
	if err != nil {
		return refreshOutcome{mode: RefreshServerError}
	}
	return out
}

func (a *API) login(username, password string) (string, string, bool, error) {
	a.loginCalls.Add(1)
	want, ok := a.users[username]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return "", "", false, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	access, refresh, err := a.issueLocked(username)
	return access, refresh, true, err
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	access, refresh, ok, err := a.login(body.Username, body.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "issue failed"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	out := a.exchange(r.Context(), body.Refresh)
	switch out.mode {
	case RefreshOK:
		resp := map[string]string{"access": out.access}
		if out.refresh != "" {
			resp["refresh"] = out.refresh
		}
		writeJSON(w, http.StatusOK, resp)
	case RefreshRejected:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
	case RefreshMalformed:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed refresh token"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
	}
}

func (a *API) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		out := a.exchange(r.Context(), r.PostForm.Get("refresh_token"))
		switch out.mode {
		case RefreshOK:
			writeOAuthToken(w, out.access, out.refresh, a.jwt.TTL())
		case RefreshRejected:
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		case RefreshMalformed:
			writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		default:
			writeOAuthError(w, http.StatusServiceUnavailable, "temporarily_unavailable")
		}
	case "password":
		access, refresh, ok, err := a.login(r.PostForm.Get("username"), r.PostForm.Get("password"))
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if !ok {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		writeOAuthToken(w, access, refresh, a.jwt.TTL())
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
	}
}

func (a *API) handleWhoami(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"subject": p.Subject, "token": p.Token})
}

func (a *API) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read failed"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Echo-Request-ID", r.Header.Get("X-Request-ID"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthToken(w http.ResponseWriter, access, refresh string, ttl time.Duration) {
	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(ttl.Seconds()),
	}
	if refresh != "" {
		resp["refresh_token"] = refresh
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": code,
	})
}
