package secretwall

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SessionAuthenticator turns a validated user into an authenticated session
// and resolves that session back into an identity on later requests.
//
// A session is carried two ways, like the server-rendered apps this grew out
// of: a server-side scs session variable, and a signed JWT cookie so the
// identity survives on any configured cookie domain without a session lookup.
type SessionAuthenticator struct {
	Session *scs.SessionManager

	// Optional name used as a prefix for defaults
	AppName string

	// Name of the session variable (and cookie) where the auth token is stored
	AuthTokenVar string

	// Name of the session variable holding the logged in user id
	UserIdVar string

	// All the domains where the auth cookies are set on login and cleared on logout
	CookieDomains []string

	// JWT related fields
	JwtIssuer    string
	JWTSecretKey string

	// How long a session is valid for. Defaults to 1 day.
	SessionTimeoutInSeconds int

	// Token ids revoked by Terminate, held until their expiry so a retained
	// cookie cannot outlive a logout. In-process state: one authenticator
	// instance serves the whole app.
	revoked   map[string]time.Time
	revokedMu sync.Mutex
}

// NewSessionAuthenticator returns an authenticator with defaults filled in
// and a fresh scs session manager.
func NewSessionAuthenticator(appName string) *SessionAuthenticator {
	out := &SessionAuthenticator{AppName: appName, Session: scs.New()}
	out.EnsureDefaults()
	out.Session.Lifetime = time.Duration(out.SessionTimeoutInSeconds) * time.Second
	return out
}

func (a *SessionAuthenticator) EnsureDefaults() *SessionAuthenticator {
	if a.AppName == "" {
		a.AppName = "Secretwall"
	}
	if a.SessionTimeoutInSeconds <= 0 {
		a.SessionTimeoutInSeconds = 86400
	}
	if a.JwtIssuer == "" {
		a.JwtIssuer = fmt.Sprintf("%s-Issuer", a.AppName)
	}
	if a.AuthTokenVar == "" {
		a.AuthTokenVar = fmt.Sprintf("%sAuthToken", a.AppName)
	}
	if a.UserIdVar == "" {
		a.UserIdVar = "loggedInUserId"
	}
	if a.JWTSecretKey == "" {
		a.JWTSecretKey = strings.TrimSpace(os.Getenv("SECRETWALL_SESSION_SECRET"))
	}
	return a
}

// Establish must only be called after a successful credential validation,
// registration or provider callback. It binds the session to the user's ID
// and returns the signed token.
func (a *SessionAuthenticator) Establish(w http.ResponseWriter, r *http.Request, user *User) (string, error) {
	a.EnsureDefaults()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.ID,
		"iss": a.JwtIssuer,
		"jti": NewUserId(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)).Unix(),
	})
	tokenString, err := token.SignedString([]byte(a.JWTSecretKey))
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}

	a.Session.Put(r.Context(), a.UserIdVar, user.ID)
	a.Session.Put(r.Context(), a.AuthTokenVar, tokenString)

	expiry := time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds))
	for _, cookieDomain := range a.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:     a.AuthTokenVar,
			Value:    tokenString,
			Domain:   cookieDomain,
			Path:     "/",
			Expires:  expiry,
			MaxAge:   a.SessionTimeoutInSeconds,
			HttpOnly: true,
		})
	}
	return tokenString, nil
}

// Resolve returns the user ID the request's session belongs to, or "" when
// the request carries no usable session. Absent, malformed or expired tokens
// all resolve to "no identity"; anonymous access to public routes is legal
// so this never fails loudly.
func (a *SessionAuthenticator) Resolve(r *http.Request) string {
	a.EnsureDefaults()

	if userId := a.Session.GetString(r.Context(), a.UserIdVar); userId != "" {
		return userId
	}

	// No server-side session; fall back to the signed cookie.
	for _, cookie := range r.CookiesNamed(a.AuthTokenVar) {
		if cookie.Value == "" {
			continue
		}
		userId, err := a.VerifyToken(cookie.Value)
		if err == nil && userId != "" {
			return userId
		}
		if err != nil {
			slog.Debug("ignoring bad auth token cookie", "err", err)
		}
	}
	return ""
}

// Terminate invalidates the session. The signed token itself is revoked
// until its expiry, so a client that kept its auth-token cookie no longer
// resolves to the user. Idempotent: terminating an absent or
// already-terminated session is a no-op.
func (a *SessionAuthenticator) Terminate(w http.ResponseWriter, r *http.Request) {
	a.EnsureDefaults()

	// Revoke every copy of the token the request carries, session var and
	// cookies alike, before the session state is gone.
	if tokenString := a.Session.GetString(r.Context(), a.AuthTokenVar); tokenString != "" {
		a.revokeToken(tokenString)
	}
	for _, cookie := range r.CookiesNamed(a.AuthTokenVar) {
		if cookie.Value != "" {
			a.revokeToken(cookie.Value)
		}
	}

	if err := a.Session.Destroy(r.Context()); err != nil {
		slog.Warn("error destroying session", "err", err)
	}
	for _, cookieDomain := range a.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:    a.AuthTokenVar,
			Domain:  cookieDomain,
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Now(),
		})
	}
}

// VerifyToken parses and verifies a signed session token and returns the
// user ID it was bound to. Suitable as the token verifier for the grpc
// interceptors.
func (a *SessionAuthenticator) VerifyToken(tokenString string) (string, error) {
	a.EnsureDefaults()
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.JWTSecretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", fmt.Errorf("claims is not a map")
	}
	if a.JwtIssuer != "" {
		if iss, err := claims.GetIssuer(); err != nil || iss != a.JwtIssuer {
			return "", fmt.Errorf("invalid issuer")
		}
	}
	if jti, _ := claims["jti"].(string); jti != "" && a.tokenRevoked(jti) {
		return "", fmt.Errorf("token revoked")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	} else if sub == "" {
		return "", fmt.Errorf("subject not found")
	}
	return sub, nil
}

// revokeToken records the token's id until its expiry. Tokens that don't
// verify are ignored: they resolve to no identity anyway.
func (a *SessionAuthenticator) revokeToken(tokenString string) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.JWTSecretKey), nil
	})
	if err != nil || !token.Valid {
		return
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return
	}
	expiry := time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds))
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiry = exp.Time
	}

	a.revokedMu.Lock()
	defer a.revokedMu.Unlock()
	if a.revoked == nil {
		a.revoked = map[string]time.Time{}
	}
	// Expired entries can never verify again; drop them while we're here
	now := time.Now()
	for id, exp := range a.revoked {
		if exp.Before(now) {
			delete(a.revoked, id)
		}
	}
	a.revoked[jti] = expiry
}

func (a *SessionAuthenticator) tokenRevoked(jti string) bool {
	a.revokedMu.Lock()
	defer a.revokedMu.Unlock()
	_, ok := a.revoked[jti]
	return ok
}

func (a *SessionAuthenticator) cookieDomains() []string {
	domains := a.CookieDomains
	if slices.Index(domains, "") < 0 { // default domain
		domains = append(domains, "")
	}
	return domains
}
