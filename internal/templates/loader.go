// Package templates renders the invitation and welcome messages sent to the
// initial administrator.
package templates

import (
	"bytes"
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

const (
	// Invitation is the Cognito pool-wide invite template
	Invitation = "invitation"
	// Welcome is the email sent through SES by the email invite strategy
	Welcome = "welcome"

	// DefaultAppName is used when the stack does not pass AppName
	DefaultAppName = "Family Archive - Document AI"
)

// Template is one message definition from templates.yaml
type Template struct {
	Name    string `yaml:"name"`
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Text    string `yaml:"text,omitempty"`
}

// Catalog is the root of templates.yaml
type Catalog struct {
	Templates []Template `yaml:"templates"`
}

// Data is what the templates are rendered with
type Data struct {
	AppName           string
	SignInURL         string
	Username          string
	TemporaryPassword string
}

// Message is a rendered template
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Load parses the embedded templates.yaml
func Load() (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(templatesYAML, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse templates.yaml: %w", err)
	}
	return &catalog, nil
}

// Get finds a template by name
func (c *Catalog) Get(name string) (*Template, error) {
	for i := range c.Templates {
		if c.Templates[i].Name == name {
			return &c.Templates[i], nil
		}
	}
	return nil, fmt.Errorf("template not found: %s", name)
}

// Render executes the named template. The HTML body is escaped with
// html/template, subject and text with text/template.
func (c *Catalog) Render(name string, data Data) (*Message, error) {
	tmpl, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if data.AppName == "" {
		data.AppName = DefaultAppName
	}

	subject, err := renderText(name+".subject", tmpl.Subject, data)
	if err != nil {
		return nil, err
	}

	htmlBody, err := renderHTML(name+".html", tmpl.HTML, data)
	if err != nil {
		return nil, err
	}

	var textBody string
	if tmpl.Text != "" {
		textBody, err = renderText(name+".text", tmpl.Text, data)
		if err != nil {
			return nil, err
		}
	}

	return &Message{
		Subject: strings.TrimSpace(subject),
		HTML:    htmlBody,
		Text:    textBody,
	}, nil
}

// SignInURL turns the AmplifyUrl stack property into an https link
func SignInURL(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "https://") || strings.HasPrefix(host, "http://") {
		return host
	}
	return "https://" + host
}

func renderText(name, src string, data Data) (string, error) {
	t, err := texttemplate.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderHTML(name, src string, data Data) (string, error) {
	t, err := htmltemplate.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
