// Command secretwall runs the secrets web server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	sw "github.com/secretwall/secretwall"
	swgorm "github.com/secretwall/secretwall/stores/gorm"

	"github.com/secretwall/secretwall/oauth2"
	"github.com/secretwall/secretwall/saml"
	"github.com/secretwall/secretwall/stores"
	"github.com/secretwall/secretwall/stores/gae"
)

// Config is loaded from the environment (and .env when present).
type Config struct {
	Addr    string `env:"SECRETWALL_ADDR" envDefault:":3000"`
	BaseURL string `env:"SECRETWALL_BASE_URL" envDefault:"http://localhost:3000"`

	// Store backend: fs, sqlite or datastore
	Store              string `env:"SECRETWALL_STORE" envDefault:"fs"`
	StoragePath        string `env:"SECRETWALL_STORAGE_PATH" envDefault:"./data"`
	DBPath             string `env:"SECRETWALL_DB_PATH" envDefault:"secretwall.db"`
	DatastoreProject   string `env:"SECRETWALL_DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"SECRETWALL_DATASTORE_NAMESPACE"`

	// Credential scheme: bcrypt or hash
	Scheme string `env:"SECRETWALL_SCHEME" envDefault:"bcrypt"`

	SessionSecret string `env:"SECRETWALL_SESSION_SECRET"`

	GoogleClientID     string `env:"OAUTH2_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"OAUTH2_GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"OAUTH2_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"OAUTH2_GITHUB_CLIENT_SECRET"`

	SamlMetadataURL string `env:"SAML_METADATA_URL"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "secretwall",
		Usage: "share your secrets anonymously",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "env file to load before reading config"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the web server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides SECRETWALL_ADDR"},
					&cli.StringFlag{Name: "store", Usage: "store backend (fs, sqlite, datastore), overrides SECRETWALL_STORE"},
				},
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func serve(c *cli.Context) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Addr = addr
	}
	if store := c.String("store"); store != "" {
		cfg.Store = store
	}

	scheme, err := sw.SchemeByName(cfg.Scheme)
	if err != nil {
		return err
	}

	store, err := buildStore(&cfg)
	if err != nil {
		return err
	}

	app := sw.NewApp(store, scheme)
	app.BaseURL = cfg.BaseURL
	app.Sessions.JWTSecretKey = cfg.SessionSecret

	if cfg.GoogleClientID != "" {
		app.AddAuth("/auth/google", oauth2.NewGoogleOAuth2(
			cfg.GoogleClientID, cfg.GoogleClientSecret,
			cfg.BaseURL+"/auth/google/callback", app.SaveUserAndRedirect))
		log.Info().Msg("google login enabled")
	}
	if cfg.GithubClientID != "" {
		app.AddAuth("/auth/github", oauth2.NewGithubOAuth2(
			cfg.GithubClientID, cfg.GithubClientSecret,
			cfg.BaseURL+"/auth/github/callback", app.SaveUserAndRedirect))
		log.Info().Msg("github login enabled")
	}

	if cfg.SamlMetadataURL != "" {
		err := saml.RegisterSamlAuth(app.Router().PathPrefix("/auth").Subrouter(), &saml.Config{
			MetadataURL: cfg.SamlMetadataURL,
			BaseURL:     cfg.BaseURL,
			CallbackURL: cfg.BaseURL + "/secrets",
		}, app.SaveUserAndRedirect)
		if err != nil {
			log.Warn().Err(err).Msg("saml login not enabled")
		} else {
			log.Info().Msg("saml login enabled")
		}
	}

	log.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Str("scheme", scheme.Name()).Msg("starting server")
	return http.ListenAndServe(cfg.Addr, app.Handler())
}

func buildStore(cfg *Config) (sw.UserStore, error) {
	switch cfg.Store {
	case "fs":
		return stores.NewFSUserStore(cfg.StoragePath), nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, err
		}
		if err := swgorm.AutoMigrate(db); err != nil {
			return nil, err
		}
		return swgorm.NewUserStore(db), nil
	case "datastore":
		client, err := datastore.NewClient(context.Background(), cfg.DatastoreProject)
		if err != nil {
			return nil, err
		}
		return gae.NewUserStore(client, cfg.DatastoreNamespace), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store)
	}
}
