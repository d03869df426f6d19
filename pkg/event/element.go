package event

import (
	"net/url"
	"sync"
)

// Element describes the DOM element an event was dispatched on, as
// captured by the client at the time of the event.
type Element struct {
	raw map[string]any

	formOnce sync.Once
	form     *FormData
}

// ElementFromRaw builds an Element from a raw payload. It returns nil when
// raw is nil or not a mapping.
func ElementFromRaw(raw any) *Element {
	m, ok := raw.(map[string]any)
	if !ok || m == nil {
		return nil
	}
	return &Element{raw: m}
}

// TagName returns the element's tag name.
func (el *Element) TagName() string {
	if s, ok := el.raw["tagName"].(string); ok {
		return s
	}
	s, _ := el.raw["tag"].(string)
	return s
}

// Value returns the element's current value, for inputs.
func (el *Element) Value() string {
	s, _ := el.raw["value"].(string)
	return s
}

// Attribute returns the named attribute and whether it was present.
func (el *Element) Attribute(name string) (string, bool) {
	attrs, ok := el.raw["attributes"].(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := attrs[name]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// ID returns the id attribute.
func (el *Element) ID() string {
	id, _ := el.Attribute("id")
	return id
}

// Data returns a data-* value from the element's dataset.
func (el *Element) Data(name string) string {
	ds, ok := el.raw["dataset"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := ds[name].(string)
	return s
}

// FormData returns the serialized form data captured with the element.
// It is never nil; an element without form data has an empty FormData.
func (el *Element) FormData() *FormData {
	el.formOnce.Do(func() {
		s, _ := el.raw["formData"].(string)
		values, err := url.ParseQuery(s)
		if err != nil {
			values = url.Values{}
		}
		el.form = &FormData{values: values}
	})
	return el.form
}
