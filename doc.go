// Package secretwall implements a small secrets-sharing web application: a
// user registers or logs in (with a local password or through an identity
// provider) and posts short text secrets that anyone can read on the wall.
//
// # Architecture
//
// The credential lifecycle is split into small collaborators:
//
// Validator: decides whether a submitted email+password pair matches a
// stored record, without ever persisting anything.
//
// Registrar: creates new local accounts; the UserStore's uniqueness
// constraint is the only arbiter of duplicate emails.
//
// SessionAuthenticator: turns a validated user into a session (scs session
// plus a signed JWT cookie) and resolves it back on later requests.
//
// Middleware: guards protected routes, bouncing anonymous requests to the
// login page with the original URL preserved.
//
// App: the route table tying them together, plus the find-or-create step
// for identity-provider logins.
//
// # Basic Usage
//
//	store := stores.NewFSUserStore("/path/to/storage")
//	scheme, _ := secretwall.SchemeByName("bcrypt")
//	app := secretwall.NewApp(store, scheme)
//	app.AddAuth("/auth/google", oauth2.NewGoogleOAuth2(clientId, secret, callbackUrl, app.SaveUserAndRedirect))
//	http.ListenAndServe(":3000", app.Handler())
//
// Database-backed stores live in stores/gorm (any GORM dialect) and
// stores/gae (Google Cloud Datastore).
package secretwall
