// Package saml wires a SAML service provider into the auth mux so an
// identity-provider login can establish the same sessions local logins do.
package saml

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// HandleUserFunc is called once the identity provider has asserted an
// identity. The userInfo map carries the asserted attributes ("email",
// "subject").
type HandleUserFunc func(authtype string, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request)

// Config holds the service provider setup. Zero values fall back to the
// SAML_* environment variables.
type Config struct {
	// Issuer names the identity provider; it becomes the provider field on
	// accounts created through this flow.
	Issuer string

	// LoginURL is the IdP's SSO endpoint the auth request is sent to.
	LoginURL string

	// MetadataURL is where the IdP's metadata document is fetched from.
	MetadataURL string

	// BaseURL is this service's externally visible root, eg https://example.com
	BaseURL string

	// CallbackURL is where the browser lands after a successful assertion.
	CallbackURL string

	CertFile string
	KeyFile  string
}

func (c *Config) EnsureDefaults() {
	if c.Issuer == "" {
		c.Issuer = strings.TrimSpace(os.Getenv("SAML_ISSUER"))
	}
	if c.LoginURL == "" {
		c.LoginURL = strings.TrimSpace(os.Getenv("SAML_LOGIN_URL"))
	}
	if c.MetadataURL == "" {
		c.MetadataURL = strings.TrimSpace(os.Getenv("SAML_METADATA_URL"))
	}
	if c.BaseURL == "" {
		c.BaseURL = strings.TrimSpace(os.Getenv("SAML_BASE_URL"))
	}
	if c.CallbackURL == "" {
		c.CallbackURL = strings.TrimSpace(os.Getenv("SAML_CALLBACK_URL"))
	}
	if c.CertFile == "" {
		c.CertFile = "saml_service.cert"
	}
	if c.KeyFile == "" {
		c.KeyFile = "saml_service.key"
	}
}

// RegisterSamlAuth mounts the SAML login, logout and ACS endpoints on rg.
// The login endpoint builds its own auth request so the login page stays the
// entry point for all auth kinds instead of crewjam's RequireAccount
// middleware guarding routes directly.
func RegisterSamlAuth(rg *mux.Router, cfg *Config, handleUser HandleUserFunc) error {
	cfg.EnsureDefaults()

	keyPair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		log.Error().Err(err).Msg("error loading saml key pair")
		return err
	}
	keyPair.Leaf, err = x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		log.Error().Err(err).Msg("error parsing saml certificate")
		return err
	}

	idpMetadataURL, err := url.Parse(cfg.MetadataURL)
	if err != nil {
		log.Error().Err(err).Str("url", cfg.MetadataURL).Msg("error parsing metadata url")
		return err
	}
	idpMetadata, err := samlsp.FetchMetadata(context.Background(), http.DefaultClient, *idpMetadataURL)
	if err != nil {
		log.Error().Err(err).Str("url", cfg.MetadataURL).Msg("error fetching idp metadata")
		return err
	}

	rootURL, err := url.Parse(cfg.BaseURL + "/auth/")
	if err != nil {
		return err
	}

	sp, err := samlsp.New(samlsp.Options{
		URL:                *rootURL,
		DefaultRedirectURI: cfg.CallbackURL,
		Key:                keyPair.PrivateKey.(*rsa.PrivateKey),
		Certificate:        keyPair.Leaf,
		IDPMetadata:        idpMetadata,
		SignRequest:        true, // some IdP require the SLO request to be signed
	})
	if err != nil {
		return err
	}

	rg.HandleFunc("/saml/login", func(w http.ResponseWriter, r *http.Request) {
		authReq, err := sp.ServiceProvider.MakeAuthenticationRequest(cfg.LoginURL, saml.HTTPRedirectBinding, sp.ResponseBinding)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		returnTo := r.URL.Query().Get("returnTo")
		returnToUrl, err := url.Parse(returnTo)
		if err != nil || returnTo == "" {
			returnToUrl, _ = url.Parse(cfg.BaseURL)
		}
		relayState, err := sp.RequestTracker.TrackRequest(w, &http.Request{URL: returnToUrl}, authReq.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		redirectURL, err := authReq.Redirect(relayState, &sp.ServiceProvider)
		if err != nil {
			log.Error().Err(err).Msg("error creating saml redirect url")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, redirectURL.String(), http.StatusFound)
	})

	rg.HandleFunc("/saml/logout", func(w http.ResponseWriter, r *http.Request) {
		nameID := samlsp.AttributeFromContext(r.Context(), "urn:oasis:names:tc:SAML:attribute:subject-id")
		logoutUrl, err := sp.ServiceProvider.MakeRedirectLogoutRequest(nameID, "")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := sp.Session.DeleteSession(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Add("Location", logoutUrl.String())
		w.WriteHeader(http.StatusFound)
	})

	rg.HandleFunc("/saml/acs", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			log.Error().Err(err).Msg("error parsing acs form")
			sp.OnError(w, r, err)
			return
		}

		possibleRequestIDs := []string{}
		if sp.ServiceProvider.AllowIDPInitiated {
			possibleRequestIDs = append(possibleRequestIDs, "")
		}
		for _, tr := range sp.RequestTracker.GetTrackedRequests(r) {
			possibleRequestIDs = append(possibleRequestIDs, tr.SAMLRequestID)
		}

		assertion, err := sp.ServiceProvider.ParseResponse(r, possibleRequestIDs)
		if err != nil {
			log.Error().Err(err).Msg("error parsing acs response")
			sp.OnError(w, r, err)
			return
		}

		if err = sp.Session.CreateSession(w, r, assertion); err != nil {
			log.Error().Err(err).Msg("error creating saml session")
			sp.OnError(w, r, err)
			return
		}

		userInfo := map[string]any{}
		for _, stmt := range assertion.AttributeStatements {
			for _, attr := range stmt.Attributes {
				if len(attr.Values) == 0 {
					continue
				}
				if strings.HasSuffix(attr.Name, "/claims/emailaddress") {
					userInfo["email"] = attr.Values[0].Value
				}
				if strings.HasSuffix(attr.Name, "subject-id") {
					userInfo["subject"] = attr.Values[0].Value
				}
			}
		}
		if assertion.Subject != nil && assertion.Subject.NameID != nil {
			if _, ok := userInfo["subject"]; !ok {
				userInfo["subject"] = assertion.Subject.NameID.Value
			}
		}

		// Not an oauth token but it keeps the handler signature uniform
		// across auth kinds.
		token := &oauth2.Token{
			AccessToken: "auth_token",
			Expiry:      time.Now().Add(3600 * time.Second),
		}
		handleUser("saml", cfg.Issuer, token, userInfo, w, r)
	})

	rg.Handle("/saml/", sp)
	return nil
}
