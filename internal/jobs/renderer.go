package jobs

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/bissquit/eventrelay/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// smsMaxLength is the body length above which SMS bodies are truncated.
const smsMaxLength = 320

// Renderer renders channel content for events from templates.
type Renderer struct {
	templates map[domain.JobKind]*template.Template
	baseURL   string
}

// templateData is what the per-event-type templates see.
type templateData struct {
	Event   *domain.Event
	Payload domain.Payload
	Summary domain.EventSummary
	Link    string
}

// NewRenderer creates a new renderer and loads all templates. baseURL is
// prepended to in-app links.
func NewRenderer(baseURL string) (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":   titleCase,
		"upper":   strings.ToUpper,
		"money":   domain.FormatAmount,
		"stars":   stars,
		"oneline": oneLine,
	}

	r := &Renderer{
		templates: make(map[domain.JobKind]*template.Template),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}

	for _, kind := range []domain.JobKind{domain.JobKindEmail, domain.JobKindSMS} {
		filename := fmt.Sprintf("templates/%s.tmpl", kind)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(string(kind)).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", filename, err)
		}

		for _, t := range domain.EventTypes {
			if tmpl.Lookup(string(t)) == nil {
				return nil, fmt.Errorf("template %s: missing block for %s", filename, t)
			}
		}

		r.templates[kind] = tmpl
	}

	return r, nil
}

// Render renders the content of a kind's message for event.
func (r *Renderer) Render(kind domain.JobKind, event *domain.Event) (Content, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return Content{}, fmt.Errorf("no templates for kind %s", kind)
	}

	summary := event.Summary()
	data := templateData{
		Event:   event,
		Payload: event.Payload,
		Summary: summary,
		Link:    r.baseURL + summary.Link,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, string(event.Type), data); err != nil {
		return Content{}, fmt.Errorf("execute template %s/%s: %w", kind, event.Type, err)
	}
	body := strings.TrimSpace(buf.String())

	if kind == domain.JobKindSMS {
		return Content{Body: truncate(oneLine(body), smsMaxLength)}, nil
	}
	return Content{Subject: oneLine(summary.Title), Body: body}, nil
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func stars(n int) string {
	if n < 0 {
		n = 0
	}
	return strings.Repeat("*", n)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
