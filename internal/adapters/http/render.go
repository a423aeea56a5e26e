package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"confreg/internal/application/dashboard"
	"confreg/internal/application/wizard"
	"confreg/internal/domain/registration"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames are the templates rendered inside layout.html.
var pageNames = []string{"register.html", "admin_login.html", "admin.html", "admin_audit.html"}

// Parsed page templates (set by NewMux)
var pages map[string]*template.Template

// page is the data handed to every template.
type page struct {
	Title     string
	CSRFField template.HTML
	Admin     bool
	Data      any
}

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json_encode_failed", "error", err)
	}
}

var optionLabels = map[string]string{
	registration.CategoryDietary: "Dietary restrictions",
	registration.CategoryADA:     "ADA requirements",
	registration.CategoryTravel:  "Travel sponsorship",

	"vegetarian":          "Vegetarian",
	"vegan":               "Vegan",
	"kosher":              "Kosher",
	"dairy-free":          "Dairy-free",
	"gluten-free":         "Gluten-free",
	"visual-assistance":   "Visual assistance",
	"hearing-assistance":  "Hearing assistance",
	"mobility-assistance": "Mobility assistance",
	"hotel":               "Hotel",
	"flight":              "Flight",
	"transportation":      "Transportation",
}

var funcMap = template.FuncMap{
	"relationshipLabel": dashboard.RelationshipLabel,
	"displayPhone":      dashboard.DisplayPhone,
	"displayDate": func(t time.Time) string {
		return dashboard.DisplayDate(t, app.Location)
	},
	"packageName": func(id string) string {
		if p, ok := registration.PackageByID(id); ok {
			return p.Name
		}
		return ""
	},
	"optionLabel": func(tag string) string {
		if l, ok := optionLabels[tag]; ok {
			return l
		}
		return tag
	},
	"options": func(category string) []string {
		opts, _ := registration.OptionsFor(category)
		return opts
	},
	"join": strings.Join,
	"add":  func(a, b int) int { return a + b },
	"sub":  func(a, b int) int { return a - b },

	"isClient":          registration.IsClient,
	"isSponsorOrVendor": registration.IsSponsorOrVendor,
	"fieldError": func(v wizard.View, field string) string {
		return v.FieldError(field)
	},
	"sortIndicator": func(q dashboard.Query, key string) string {
		if q.Sort != key {
			return ""
		}
		if q.Dir == "asc" {
			return "▲"
		}
		return "▼"
	},
	"queryURL": func(path string, q dashboard.Query, pairs ...any) template.URL {
		values := q.Values()
		for i := 0; i+1 < len(pairs); i += 2 {
			values.Set(fmt.Sprint(pairs[i]), fmt.Sprint(pairs[i+1]))
		}
		return template.URL(path + "?" + values.Encode())
	},
	"pluralize": func(n int, word string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, word)
		}
		return fmt.Sprintf("%d %ss", n, word)
	},
}

func mustParsePages() map[string]*template.Template {
	out := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		out[name] = template.Must(template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return out
}

// renderTemplate executes a page into a buffer first so a failing template never sends a partial page.
func renderTemplate(w http.ResponseWriter, r *http.Request, status int, name, title string, admin bool, data any) {
	tpl, ok := pages[name]
	if !ok {
		internalError(w, fmt.Errorf("unknown template %q", name))
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, page{Title: title, CSRFField: csrf.TemplateField(r), Admin: admin, Data: data}); err != nil {
		internalError(w, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// redirectWith sends the browser to path with the given query (303 See Other).
func redirectWith(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
