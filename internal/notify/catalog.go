package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

type templateSpec struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Catalog holds the parsed message templates
type Catalog struct {
	templates map[string]compiled
}

// Rendered is a message ready to send
type Rendered struct {
	Subject string
	Body    string
}

// DefaultCatalog parses the embedded templates
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultTemplates)
}

// ParseCatalog parses a YAML document mapping template names to subject and body
func ParseCatalog(data []byte) (*Catalog, error) {
	var specs map[string]templateSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	c := &Catalog{templates: make(map[string]compiled, len(specs))}
	for name, spec := range specs {
		subject, err := template.New(name + ".subject").Option("missingkey=zero").Parse(spec.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=zero").Parse(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", name, err)
		}
		c.templates[name] = compiled{subject: subject, body: body}
	}
	return c, nil
}

// Has reports whether the catalog knows name
func (c *Catalog) Has(name string) bool {
	_, ok := c.templates[name]
	return ok
}

// Render executes a template with data
func (c *Catalog) Render(name string, data map[string]interface{}) (Rendered, error) {
	t, ok := c.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s body: %w", name, err)
	}
	return Rendered{Subject: subject.String(), Body: body.String()}, nil
}
