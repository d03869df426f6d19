package event

import "net/url"

// FormData represents form fields serialized by the client.
// A nil *FormData behaves as an empty form.
type FormData struct {
	values url.Values
}

func (f *FormData) fields() url.Values {
	if f == nil {
		return nil
	}
	return f.values
}

// Get returns the first value for a form field.
func (f *FormData) Get(key string) string {
	return f.fields().Get(key)
}

// Has returns whether a form field exists.
func (f *FormData) Has(key string) bool {
	return f.fields().Has(key)
}

// Values returns every value submitted for a field, in order.
func (f *FormData) Values(key string) []string {
	return append([]string(nil), f.fields()[key]...)
}

// Len returns the number of distinct fields.
func (f *FormData) Len() int {
	return len(f.fields())
}

// All returns the first value of every field.
func (f *FormData) All() map[string]string {
	values := f.fields()
	result := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}
