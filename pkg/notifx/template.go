package notifx

import (
	"bytes"
	"html/template"
	"sync"
)

// layout wraps every registered body, which is parsed as "content"
const layout = `<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; line-height: 1.5; color: #222;">
{{template "content" .}}
</body>
</html>`

// TemplateRegistry renders named message bodies inside the shared layout.
// Bodies are html/template sources, so data is escaped.
type TemplateRegistry struct {
	base *template.Template

	mu        sync.RWMutex
	templates map[string]*template.Template
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		base:      template.Must(template.New("layout").Parse(layout)),
		templates: make(map[string]*template.Template),
	}
}

// Register parses body and stores it under name, replacing any previous one
func (r *TemplateRegistry) Register(name, body string) error {
	t, err := r.base.Clone()
	if err == nil {
		_, err = t.New("content").Parse(body)
	}
	if err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}

	r.mu.Lock()
	r.templates[name] = t
	r.mu.Unlock()
	return nil
}

// Render executes the named template with data
func (r *TemplateRegistry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}
	return buf.String(), nil
}
