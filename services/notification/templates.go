package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"licensing-controlplane/pkg/mailer"
	"licensing-controlplane/services/license"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const dateLayout = "02/01/2006"

var subjects = map[string]string{
	"expired_internal": "Internal notice: expired license - {{.ClientName}} ({{.Identifier}})",
	"expired_client":   "URGENT: Your {{.SystemName}} license has expired - {{.Identifier}}",
	"pending_client":   "WARNING: Your {{.SystemName}} license is about to expire - {{.Identifier}}",
}

type noticeData struct {
	ClientName  string
	ClientTaxID string
	Identifier  string
	SystemName  string
	Period      string
	Type        string
	Status      string
	EndDate     string
	Internal    bool
	SenderName  string
	CompanyName string
}

type Renderer struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
	sender  string
	company string
}

func NewRenderer(senderName, companyName string) (*Renderer, error) {
	subject := texttemplate.New("subjects")
	for name, tmpl := range subjects {
		if _, err := subject.New(name).Parse(tmpl); err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", name, err)
		}
	}

	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}

	return &Renderer{
		subject: subject,
		text:    text,
		html:    html,
		sender:  senderName,
		company: companyName,
	}, nil
}

// Render builds the message for a notice of the given kind about l, sent to
// rcpt.
func (r *Renderer) Render(kind Kind, rcpt Recipient, l *license.License) (*mailer.Message, error) {
	name := fmt.Sprintf("%s_%s", kind, rcpt.Audience)
	data := r.data(rcpt, l)

	subject, err := execText(r.subject, name, data)
	if err != nil {
		return nil, err
	}
	text, err := execText(r.text, name+".txt.tmpl", data)
	if err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return nil, fmt.Errorf("render %s html: %w", name, err)
	}

	return &mailer.Message{
		To:      []string{rcpt.Address},
		Subject: strings.TrimSpace(subject),
		Text:    text,
		HTML:    html.String(),
	}, nil
}

func (r *Renderer) data(rcpt Recipient, l *license.License) noticeData {
	d := noticeData{
		Identifier:  l.Identifier,
		Period:      l.Period.Label(),
		Type:        l.Type.Label(),
		Status:      l.Status.Label(),
		Internal:    rcpt.Audience == AudienceInternal,
		SenderName:  r.sender,
		CompanyName: r.company,
	}
	if l.Client != nil {
		d.ClientName = l.Client.Name
		if l.Client.TaxID != nil {
			d.ClientTaxID = *l.Client.TaxID
		}
	}
	if l.System != nil {
		d.SystemName = l.System.Name
	}
	if l.EndDate != nil {
		d.EndDate = l.EndDate.Format(dateLayout)
	}
	return d
}

func execText(t *texttemplate.Template, name string, data noticeData) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
