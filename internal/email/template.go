package email

import (
	"bytes"
	"embed"
	"fmt"
	htmpl "html/template"
	"strings"
	texttpl "text/template"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var (
	birthdaySubject = texttpl.Must(texttpl.ParseFS(templatesFS, "templates/birthday.subject.tmpl"))
	birthdayHTML    = htmpl.Must(htmpl.ParseFS(templatesFS, "templates/birthday.html.tmpl"))
)

// BirthdayData is everything the birthday message shows.
type BirthdayData struct {
	Name            string
	Code            string
	Brand           string
	Recommendations []*domain.Product
}

// RenderBirthday returns the subject and HTML body of the birthday message.
// An empty recommendation list drops that section.
func RenderBirthday(data BirthdayData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := birthdaySubject.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := birthdayHTML.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject, buf.String(), nil
}
