package secretwall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const genericLoginError = "Invalid email or password."

// App owns the route table and ties the credential components together:
// validator and registrar for local accounts, the session authenticator for
// establishing and resolving sessions, and the middleware guarding /submit.
type App struct {
	Store      UserStore
	Scheme     CredentialScheme
	Sessions   *SessionAuthenticator
	Middleware *Middleware

	// BaseURL is this service's externally visible root, used to absolutize
	// relative post-auth redirect targets. Optional.
	BaseURL string

	router    *mux.Router
	views     *Renderer
	validator *Validator
	registrar *Registrar
}

func NewApp(store UserStore, scheme CredentialScheme) *App {
	return (&App{Store: store, Scheme: scheme}).EnsureDefaults()
}

func (a *App) EnsureDefaults() *App {
	if a.Scheme == nil {
		a.Scheme, _ = SchemeByName("")
	}
	if a.Sessions == nil {
		a.Sessions = NewSessionAuthenticator("Secretwall")
	}
	if a.Middleware == nil {
		a.Middleware = &Middleware{Sessions: a.Sessions}
	}
	a.Middleware.EnsureReasonableDefaults()
	if a.views == nil {
		a.views = NewRenderer()
	}
	if a.validator == nil {
		a.validator = &Validator{Store: a.Store, Scheme: a.Scheme}
	}
	if a.registrar == nil {
		a.registrar = &Registrar{Store: a.Store, Scheme: a.Scheme}
	}
	return a
}

// Handler returns the root handler. The scs middleware wraps everything so
// session loads and saves bracket each request.
func (a *App) Handler() http.Handler {
	a.setupRoutes()
	return a.Sessions.Session.LoadAndSave(a.router)
}

// Router exposes the underlying mux router so extra routes (eg a SAML
// service provider) can be mounted before the server starts.
func (a *App) Router() *mux.Router {
	a.setupRoutes()
	return a.router
}

func (a *App) setupRoutes() *App {
	if a.router != nil {
		return a
	}
	a.EnsureDefaults()
	r := mux.NewRouter()

	r.HandleFunc("/", a.onHome).Methods("GET")
	r.HandleFunc("/login", a.onLoginPage).Methods("GET")
	r.HandleFunc("/login", a.onLogin).Methods("POST")
	r.HandleFunc("/register", a.onRegisterPage).Methods("GET")
	r.HandleFunc("/register", a.onRegister).Methods("POST")
	r.HandleFunc("/secrets", a.onSecrets).Methods("GET")
	r.Handle("/submit", a.Middleware.EnsureUser(http.HandlerFunc(a.onSubmitPage))).Methods("GET")
	r.Handle("/submit", a.Middleware.EnsureUser(http.HandlerFunc(a.onSubmit))).Methods("POST")
	r.HandleFunc("/logout", a.onLogout).Methods("GET")

	a.router = r
	return a
}

// AddAuth mounts a provider adapter under a path prefix, eg
// app.AddAuth("/auth/google", googleAuth). The adapter is served as a subtree
// so it sees /, /callback etc relative to its prefix; the bare prefix is
// redirected to the subtree with the method preserved.
func (a *App) AddAuth(prefix string, handler http.Handler) *App {
	a.setupRoutes()
	prefix = strings.TrimSuffix(prefix, "/")
	a.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, handler))
	a.router.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Path + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		// 308 preserves the method; 301 would turn a POST into a GET
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
	return a
}

func (a *App) loggedIn(r *http.Request) bool {
	return a.Middleware.GetLoggedInUserId(r) != ""
}

func (a *App) onHome(w http.ResponseWriter, r *http.Request) {
	a.views.Render(w, http.StatusOK, "home", &PageData{Title: "Home", LoggedIn: a.loggedIn(r)})
}

func (a *App) onLoginPage(w http.ResponseWriter, r *http.Request) {
	if a.loggedIn(r) {
		http.Redirect(w, r, "/secrets", http.StatusFound)
		return
	}
	a.views.Render(w, http.StatusOK, "login", &PageData{Title: "Log In"})
}

func (a *App) onLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		a.views.Render(w, http.StatusBadRequest, "login", &PageData{
			Title: "Log In",
			Email: email,
			Error: "Email and password are required.",
		})
		return
	}

	user, err := a.validator.Validate(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidCredentials) {
			// Same response for both so a failed login leaks nothing about
			// which identifiers exist.
			log.Info().Str("code", ErrCodeInvalidCreds).Msg("login rejected")
			a.views.Render(w, http.StatusUnauthorized, "login", &PageData{
				Title: "Log In",
				Email: email,
				Error: genericLoginError,
			})
			return
		}
		log.Error().Err(err).Str("code", ErrCodeStoreError).Msg("error validating credentials")
		a.renderServerError(w)
		return
	}

	if _, err := a.Sessions.Establish(w, r, user); err != nil {
		log.Error().Err(err).Msg("error establishing session")
		a.renderServerError(w)
		return
	}
	http.Redirect(w, r, a.postLoginTarget(r), http.StatusFound)
}

func (a *App) onRegisterPage(w http.ResponseWriter, r *http.Request) {
	if a.loggedIn(r) {
		http.Redirect(w, r, "/secrets", http.StatusFound)
		return
	}
	a.views.Render(w, http.StatusOK, "register", &PageData{Title: "Register"})
}

func (a *App) onRegister(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	user, err := a.registrar.Register(r.Context(), email, password)
	if err != nil {
		var authErr *AuthError
		if errors.Is(err, ErrEmailExists) {
			log.Info().Str("code", ErrCodeEmailExists).Msg("registration rejected")
			http.Redirect(w, r, "/register", http.StatusFound)
			return
		}
		if errors.As(err, &authErr) {
			log.Info().Str("code", authErr.Code).Str("field", authErr.Field).Msg("registration rejected")
			http.Redirect(w, r, "/register", http.StatusFound)
			return
		}
		log.Error().Err(err).Str("code", ErrCodeStoreError).Msg("error registering user")
		a.renderServerError(w)
		return
	}

	// Registration implies login
	if _, err := a.Sessions.Establish(w, r, user); err != nil {
		log.Error().Err(err).Msg("error establishing session")
		a.renderServerError(w)
		return
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

func (a *App) onSecrets(w http.ResponseWriter, r *http.Request) {
	users, err := a.Store.ListUsersWithSecrets(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("error listing secrets")
		a.renderServerError(w)
		return
	}
	a.views.Render(w, http.StatusOK, "secrets", &PageData{
		Title:      "Secrets",
		LoggedIn:   a.loggedIn(r),
		SecretWall: users,
	})
}

func (a *App) onSubmitPage(w http.ResponseWriter, r *http.Request) {
	a.views.Render(w, http.StatusOK, "submit", &PageData{Title: "Submit", LoggedIn: true})
}

func (a *App) onSubmit(w http.ResponseWriter, r *http.Request) {
	userId := a.Middleware.GetLoggedInUserId(r)
	// Content is not validated: empty and duplicate secrets are permitted
	secret := r.FormValue("secret")

	if err := a.Store.AppendSecret(r.Context(), userId, secret); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Session outlived the record it pointed at
			a.Sessions.Terminate(w, r)
			http.Redirect(w, r, a.Middleware.LoginURL, http.StatusFound)
			return
		}
		log.Error().Err(err).Str("userId", userId).Msg("error appending secret")
		a.renderServerError(w)
		return
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

func (a *App) onLogout(w http.ResponseWriter, r *http.Request) {
	a.Sessions.Terminate(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) renderServerError(w http.ResponseWriter) {
	a.views.Render(w, http.StatusInternalServerError, "error", &PageData{Title: "Error"})
}

// postLoginTarget is where a successful login lands. A callbackURL (set by
// the access gate when it bounced a protected request) wins over the default.
func (a *App) postLoginTarget(r *http.Request) string {
	if target := r.FormValue(a.Middleware.CallbackURLParam); safeRelativeTarget(target) {
		return target
	}
	if target := r.URL.Query().Get(a.Middleware.CallbackURLParam); safeRelativeTarget(target) {
		return target
	}
	return "/secrets"
}

// safeRelativeTarget reports whether target is a same-origin path. Targets
// like //evil.com parse as scheme-relative URLs and would send the browser
// off-site after a successful login.
func safeRelativeTarget(target string) bool {
	return strings.HasPrefix(target, "/") &&
		!strings.HasPrefix(target, "//") &&
		!strings.Contains(target, "\\")
}

// SaveUserAndRedirect is the HandleUserFunc for all provider adapters. It
// runs the find-or-create step for the asserted external identity, then
// establishes a session exactly like a local login would.
//
// The create path can race another first-time login for the same identity;
// the store's uniqueness constraint is the final arbiter and the loser
// re-reads the winner's record.
func (a *App) SaveUserAndRedirect(authtype, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
	subject := providerSubject(userInfo)
	if subject == "" {
		log.Warn().Str("provider", provider).Msg("provider returned no usable subject")
		http.Redirect(w, r, a.Middleware.LoginURL, http.StatusFound)
		return
	}

	user, err := a.ensureProviderUser(r.Context(), provider, subject, userInfo)
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("error resolving provider user")
		http.Redirect(w, r, a.Middleware.LoginURL, http.StatusFound)
		return
	}

	if _, err := a.Sessions.Establish(w, r, user); err != nil {
		log.Error().Err(err).Msg("error establishing session")
		a.renderServerError(w)
		return
	}

	// The cookie value is client-controlled; only same-origin paths pass
	callbackURL := "/secrets"
	if cookie, _ := r.Cookie("oauthCallbackURL"); cookie != nil && safeRelativeTarget(cookie.Value) {
		callbackURL = cookie.Value
		if a.BaseURL != "" {
			callbackURL = a.BaseURL + callbackURL
		}
	}
	// One-shot cookies; clear them so they don't steer later logins
	for _, name := range []string{"oauthCallbackURL", "oauthstate"} {
		http.SetCookie(w, &http.Cookie{
			Name: name, Value: "", Path: "/",
			MaxAge: -1, Expires: time.Now(),
		})
	}
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

func (a *App) ensureProviderUser(ctx context.Context, provider, subject string, userInfo map[string]any) (*User, error) {
	user, err := a.Store.GetUserBySubject(ctx, provider, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	email, _ := userInfo["email"].(string)
	email = strings.TrimSpace(email)
	if email == "" {
		// Providers can withhold the email; synthesize a stable identifier
		email = provider + ":" + subject
	}

	now := time.Now()
	user = &User{
		ID:        NewUserId(),
		Email:     email,
		Provider:  provider,
		Subject:   subject,
		Secrets:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = a.Store.CreateUser(ctx, user)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrEmailExists) {
		return nil, err
	}

	// Lost the race, or the email belongs to an existing account. Re-read by
	// subject first (concurrent first-time login), then by email.
	if user, err = a.Store.GetUserBySubject(ctx, provider, subject); err == nil {
		return user, nil
	}
	user, err = a.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Provider != provider || user.Subject != subject {
		return nil, fmt.Errorf("email %s belongs to a different account", email)
	}
	return user, nil
}

// providerSubject digs the stable external identifier out of the provider's
// profile attributes. GitHub reports a numeric id, Google a string.
func providerSubject(userInfo map[string]any) string {
	for _, key := range []string{"id", "sub", "subject"} {
		switch v := userInfo[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}
