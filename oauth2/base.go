package oauth2

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// BaseOAuth2 holds what every provider adapter needs: client credentials,
// the redirect flow entry point and the success callback. Provider specifics
// (endpoint, scopes, userinfo fetch) live in the concrete adapters.
type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// Where to send the browser when the handshake fails. Defaults to /login.
	AuthFailureUrl string

	// Called with the provider's verified user info on success
	HandleUser HandleUserFunc

	// HTTPClient overrides the client used for userinfo fetches (tests)
	HTTPClient *http.Client

	oauthConfig oauth2.Config
	mux         *http.ServeMux
}

func NewBaseOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	out := &BaseOAuth2{
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		AuthFailureUrl: "/login",
		HandleUser:     handleUser,
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.mux.HandleFunc("/", OauthRedirector(&out.oauthConfig))
	return out
}

// ServeHTTP lets an adapter be mounted under a path prefix; the internal mux
// dispatches between the redirect entry point and the provider callback.
func (b *BaseOAuth2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// ExchangeContext returns the context used for the code exchange. When a
// test client is injected it is attached so the exchange goes through it too.
func (b *BaseOAuth2) ExchangeContext() context.Context {
	ctx := context.Background()
	if b.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}
