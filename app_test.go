package secretwall_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/steinfletcher/apitest"

	sw "github.com/secretwall/secretwall"
)

func newTestApp(t *testing.T) (*sw.App, http.Handler) {
	t.Helper()
	app := sw.NewApp(newMemStore(), &sw.BcryptScheme{Cost: 4})
	app.Sessions.JWTSecretKey = "test-secret-key-1234567890"
	return app, app.Handler()
}

func TestRouteTable(t *testing.T) {
	_, handler := newTestApp(t)

	apitest.New("home renders").
		Handler(handler).
		Get("/").
		Expect(t).
		Status(http.StatusOK).
		End()

	apitest.New("login form renders").
		Handler(handler).
		Get("/login").
		Expect(t).
		Status(http.StatusOK).
		End()

	apitest.New("register form renders").
		Handler(handler).
		Get("/register").
		Expect(t).
		Status(http.StatusOK).
		End()

	apitest.New("secrets wall is public").
		Handler(handler).
		Get("/secrets").
		Expect(t).
		Status(http.StatusOK).
		End()

	apitest.New("submit is gated").
		Handler(handler).
		Get("/submit").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/login?callbackURL=%2Fsubmit").
		End()

	apitest.New("logout without a session is a no-op").
		Handler(handler).
		Get("/logout").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/").
		End()
}

func TestLoginFailures(t *testing.T) {
	app, handler := newTestApp(t)

	// Seed one known account
	registrar := &sw.Registrar{Store: app.Store, Scheme: app.Scheme}
	if _, err := registrar.Register(t.Context(), "a@x.com", "hunter2"); err != nil {
		t.Fatalf("seeding account failed: %v", err)
	}

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
	}{
		{name: "unknown identifier", email: "b@x.com", password: "hunter2", wantStatus: http.StatusUnauthorized},
		{name: "wrong password", email: "a@x.com", password: "wrong", wantStatus: http.StatusUnauthorized},
		{name: "missing password", email: "a@x.com", password: "", wantStatus: http.StatusBadRequest},
		{name: "missing email", email: "", password: "hunter2", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"email": {tt.email}, "password": {tt.password}}
			req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
			body := rec.Body.String()
			if tt.wantStatus == http.StatusUnauthorized {
				// Unknown identifier and wrong password must be
				// indistinguishable to the client.
				if !strings.Contains(body, "Invalid email or password.") {
					t.Errorf("401 body missing the generic failure message")
				}
				if strings.Contains(body, "not found") || strings.Contains(body, "no such") {
					t.Errorf("failure response leaks whether the identifier exists")
				}
			}
		})
	}
}

// Full browser scenario: register, land on the secrets wall, post a secret,
// read it back, log out and lose access to /submit.
func TestRegisterSubmitLogoutFlow(t *testing.T) {
	_, handler := newTestApp(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	postForm := func(path string, form url.Values) *http.Response {
		t.Helper()
		resp, err := client.PostForm(server.URL+path, form)
		if err != nil {
			t.Fatalf("POST %s failed: %v", path, err)
		}
		resp.Body.Close()
		return resp
	}

	// Register establishes a session and redirects to the wall
	resp := postForm("/register", url.Values{"email": {"a@x.com"}, "password": {"hunter2"}})
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/secrets" {
		t.Fatalf("register: got %d -> %q, want 302 -> /secrets", resp.StatusCode, resp.Header.Get("Location"))
	}

	// The submit form is reachable now
	getResp, err := client.Get(server.URL + "/submit")
	if err != nil {
		t.Fatalf("GET /submit failed: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("GET /submit with session: got %d, want 200", getResp.StatusCode)
	}

	resp = postForm("/submit", url.Values{"secret": {"i still use hunter2"}})
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/secrets" {
		t.Fatalf("submit: got %d -> %q, want 302 -> /secrets", resp.StatusCode, resp.Header.Get("Location"))
	}

	// The secret shows up on the wall, even anonymously
	wallResp, err := http.Get(server.URL + "/secrets")
	if err != nil {
		t.Fatalf("GET /secrets failed: %v", err)
	}
	wall, _ := io.ReadAll(wallResp.Body)
	wallResp.Body.Close()
	if !strings.Contains(string(wall), "i still use hunter2") {
		t.Error("posted secret not on the wall")
	}

	// Duplicate registration bounces back to the form
	resp = postForm("/register", url.Values{"email": {"a@x.com"}, "password": {"other"}})
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/register" {
		t.Fatalf("duplicate register: got %d -> %q, want 302 -> /register", resp.StatusCode, resp.Header.Get("Location"))
	}

	// Logout drops the session
	logoutResp, err := client.Get(server.URL + "/logout")
	if err != nil {
		t.Fatalf("GET /logout failed: %v", err)
	}
	logoutResp.Body.Close()
	if logoutResp.StatusCode != http.StatusFound || logoutResp.Header.Get("Location") != "/" {
		t.Fatalf("logout: got %d -> %q, want 302 -> /", logoutResp.StatusCode, logoutResp.Header.Get("Location"))
	}

	getResp, err = client.Get(server.URL + "/submit")
	if err != nil {
		t.Fatalf("GET /submit after logout failed: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusFound {
		t.Fatalf("GET /submit after logout: got %d, want redirect to login", getResp.StatusCode)
	}

	// And logging back in works with the registered credentials
	resp = postForm("/login", url.Values{"email": {"a@x.com"}, "password": {"hunter2"}})
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/secrets" {
		t.Fatalf("login: got %d -> %q, want 302 -> /secrets", resp.StatusCode, resp.Header.Get("Location"))
	}
}

// The callbackURL set by the access gate steers the post-login redirect,
// but only to same-origin paths: off-site targets fall back to the wall.
func TestLoginCallbackURLTargets(t *testing.T) {
	app, handler := newTestApp(t)

	registrar := &sw.Registrar{Store: app.Store, Scheme: app.Scheme}
	if _, err := registrar.Register(t.Context(), "a@x.com", "hunter2"); err != nil {
		t.Fatalf("seeding account failed: %v", err)
	}

	tests := []struct {
		name         string
		callbackURL  string
		wantLocation string
	}{
		{name: "relative path honored", callbackURL: "/submit", wantLocation: "/submit"},
		{name: "scheme-relative rejected", callbackURL: "//evil.com/phish", wantLocation: "/secrets"},
		{name: "absolute url rejected", callbackURL: "https://evil.com/phish", wantLocation: "/secrets"},
		{name: "backslash trick rejected", callbackURL: "/\\evil.com", wantLocation: "/secrets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"email": {"a@x.com"}, "password": {"hunter2"}, "callbackURL": {tt.callbackURL}}
			req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusFound || rec.Header().Get("Location") != tt.wantLocation {
				t.Fatalf("got %d -> %q, want 302 -> %q", rec.Code, rec.Header().Get("Location"), tt.wantLocation)
			}
		})
	}
}

// No content validation on secrets: empty strings are appended like any
// other submission.
func TestSubmitAllowsEmptySecret(t *testing.T) {
	app, handler := newTestApp(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.PostForm(server.URL+"/register", url.Values{"email": {"a@x.com"}, "password": {"hunter2"}})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	resp.Body.Close()

	resp, err = client.PostForm(server.URL+"/submit", url.Values{"secret": {""}})
	if err != nil {
		t.Fatalf("POST /submit failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/secrets" {
		t.Fatalf("empty secret: got %d -> %q, want 302 -> /secrets", resp.StatusCode, resp.Header.Get("Location"))
	}

	user, err := app.Store.GetUserByEmail(t.Context(), "a@x.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(user.Secrets) != 1 || user.Secrets[0] != "" {
		t.Fatalf("got secrets %#v, want [\"\"]", user.Secrets)
	}
}
