package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/vango-dev/motion/pkg/component"
)

// KeyAttr is the attribute Wrap puts on the root element. The client uses
// it to find the markup a render frame replaces.
const KeyAttr = "data-motion-key"

// Func adapts a function to the component.Renderer interface.
type Func func(c component.Component) (component.Output, error)

// Render calls f(c).
func (f Func) Render(c component.Component) (component.Output, error) {
	return f(c)
}

// Template renders a component by executing t with the component as data.
func Template(t *template.Template) component.Renderer {
	return Func(func(c component.Component) (component.Output, error) {
		var b strings.Builder
		if err := t.Execute(&b, c); err != nil {
			return "", fmt.Errorf("render: template %s: %w", t.Name(), err)
		}
		return b.String(), nil
	})
}

// Wrap renders with next and wraps the output in a root element keyed by
// key, so every render of one connection replaces the same element.
func Wrap(next component.Renderer, key string) component.Renderer {
	open := `<div ` + KeyAttr + `="` + escapeAttr(key) + `">`
	return Func(func(c component.Component) (component.Output, error) {
		out, err := next.Render(c)
		if err != nil {
			return "", err
		}
		return open + out + "</div>", nil
	})
}
