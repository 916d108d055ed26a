package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/devflow/devflow-api/internal/model"
)

// TemplateData is what notification emails can render.
type TemplateData struct {
	RecipientName string
	Title         string
	Message       string
	Link          string
}

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
<p>Hi {{.RecipientName}},</p>
{{template "content" .}}
<p style="color: #7b8794; font-size: 12px;">You are receiving this email because of your DevFlow notification settings.</p>
</body>
</html>`

var contents = map[model.NotificationType]string{
	model.NotificationReviewReceived: `{{define "content"}}
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
<p><a href="{{.Link}}">Read the review</a></p>
{{end}}`,
	model.NotificationProjectViewed: `{{define "content"}}
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
<p><a href="{{.Link}}">See your project</a></p>
{{end}}`,
}

// Templates renders notification emails. Only types with a template can
// be emailed.
type Templates struct {
	byType map[model.NotificationType]*template.Template
}

func NewTemplates() (*Templates, error) {
	t := &Templates{byType: make(map[model.NotificationType]*template.Template)}
	for typ, content := range contents {
		tmpl, err := template.New(string(typ)).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("parsing email layout: %w", err)
		}
		if _, err := tmpl.Parse(content); err != nil {
			return nil, fmt.Errorf("parsing %s email template: %w", typ, err)
		}
		t.byType[typ] = tmpl
	}
	return t, nil
}

func (t *Templates) Has(typ model.NotificationType) bool {
	_, ok := t.byType[typ]
	return ok
}

// Render returns the subject and HTML body for a notification.
func (t *Templates) Render(typ model.NotificationType, data TemplateData) (string, string, error) {
	tmpl, ok := t.byType[typ]
	if !ok {
		return "", "", fmt.Errorf("no email template for %s", typ)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("rendering %s email: %w", typ, err)
	}
	return "DevFlow: " + data.Title, buf.String(), nil
}
