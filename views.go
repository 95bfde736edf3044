package secretwall

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer renders the app's server-side pages. Templates are compiled once
// at startup from the embedded filesystem.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{
		templates: template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}
}

// PageData is what every template receives. Error carries a user-facing
// message for form re-renders; nothing sensitive goes in here.
type PageData struct {
	Title      string
	LoggedIn   bool
	Error      string
	Email      string
	SecretWall []*User
}

func (v *Renderer) Render(w http.ResponseWriter, status int, name string, data *PageData) {
	if data == nil {
		data = &PageData{}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := v.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("error rendering template")
	}
}
