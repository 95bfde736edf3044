package secretwall

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type userParamNameKey string

// Middleware is the access gate. EnsureUser guards protected routes;
// ExtractUser only loads the identity for handlers that serve both anonymous
// and logged-in visitors.
type Middleware struct {
	Sessions *SessionAuthenticator

	// Request-context variable under which the user id is stored
	UserParamName string

	// Where unauthenticated requests to protected routes get sent
	LoginURL string

	// Query parameter carrying the original URL through the login redirect
	CallbackURLParam string
}

func (m *Middleware) EnsureReasonableDefaults() {
	if m.UserParamName == "" {
		m.UserParamName = "loggedInUserId"
	}
	if m.LoginURL == "" {
		m.LoginURL = "/login"
	}
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "callbackURL"
	}
}

// GetLoggedInUserId returns the ID of the logged in user for the current
// request, or "" if the request is anonymous.
func (m *Middleware) GetLoggedInUserId(r *http.Request) string {
	if v := r.Context().Value(userParamNameKey(m.UserParamName)); v != nil {
		if userId, ok := v.(string); ok && userId != "" {
			return userId
		}
	}
	return m.Sessions.Resolve(r)
}

// ExtractUser resolves the session (if any) and makes the user id available
// to downstream handlers. It performs no redirects.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := m.Sessions.Resolve(r)
		next.ServeHTTP(w, m.setLoggedInUserId(userId, r))
	})
}

// EnsureUser enforces that a valid session exists before the wrapped handler
// runs. Unauthenticated requests are redirected to the login page with the
// original URL preserved; this is an expected outcome, never a server error.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := m.Sessions.Resolve(r)
		if userId == "" {
			originalUrl := r.URL.Path
			encodedUrl := strings.Replace(url.QueryEscape(originalUrl), "+", "%20", -1)
			redirUrl := fmt.Sprintf("%s?%s=%s", m.LoginURL, m.CallbackURLParam, encodedUrl)
			http.Redirect(w, r, redirUrl, http.StatusFound)
			return
		}
		next.ServeHTTP(w, m.setLoggedInUserId(userId, r))
	})
}

// Set the logged in user id into the request's context so it is available to
// all handlers downstream.
func (m *Middleware) setLoggedInUserId(userId string, r *http.Request) *http.Request {
	contextWithUser := context.WithValue(r.Context(), userParamNameKey(m.UserParamName), userId)
	return r.WithContext(contextWithUser)
}
