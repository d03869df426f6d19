package event

import (
	"reflect"
	"testing"
)

func TestElementFromRaw(t *testing.T) {
	if el := ElementFromRaw(nil); el != nil {
		t.Errorf("ElementFromRaw(nil) = %v, want nil", el)
	}
	if el := ElementFromRaw(42); el != nil {
		t.Errorf("ElementFromRaw(42) = %v, want nil", el)
	}

	el := ElementFromRaw(map[string]any{
		"tagName":    "INPUT",
		"value":      "hello",
		"attributes": map[string]any{"id": "title", "name": "title", "disabled": ""},
		"dataset":    map[string]any{"row": "7"},
	})
	if el == nil {
		t.Fatal("ElementFromRaw returned nil")
	}
	if el.TagName() != "INPUT" {
		t.Errorf("TagName() = %q, want %q", el.TagName(), "INPUT")
	}
	if el.Value() != "hello" {
		t.Errorf("Value() = %q, want %q", el.Value(), "hello")
	}
	if el.ID() != "title" {
		t.Errorf("ID() = %q, want %q", el.ID(), "title")
	}
	if v, ok := el.Attribute("disabled"); !ok || v != "" {
		t.Errorf("Attribute(disabled) = %q, %v, want \"\", true", v, ok)
	}
	if _, ok := el.Attribute("missing"); ok {
		t.Error("Attribute(missing) should not be present")
	}
	if el.Data("row") != "7" {
		t.Errorf("Data(row) = %q, want %q", el.Data("row"), "7")
	}
}

func TestElementFormData(t *testing.T) {
	el := ElementFromRaw(map[string]any{
		"tagName":  "FORM",
		"formData": "title=Hello+World&tag=a&tag=b",
	})

	fd := el.FormData()
	if fd.Get("title") != "Hello World" {
		t.Errorf("Get(title) = %q, want %q", fd.Get("title"), "Hello World")
	}
	if !fd.Has("tag") {
		t.Error("Has(tag) = false")
	}
	if got := fd.Values("tag"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Values(tag) = %v, want [a b]", got)
	}
	want := map[string]string{"title": "Hello World", "tag": "a"}
	if got := fd.All(); !reflect.DeepEqual(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
	if el.FormData() != fd {
		t.Error("FormData() should be cached")
	}
}

func TestElementFormDataMalformed(t *testing.T) {
	el := ElementFromRaw(map[string]any{"formData": "%zz"})
	if fd := el.FormData(); fd == nil || fd.Len() != 0 {
		t.Errorf("FormData() = %v, want empty", fd)
	}
}

func TestNilFormData(t *testing.T) {
	var f *FormData
	if got := f.Get("a"); got != "" {
		t.Errorf("Get() = %q, want empty", got)
	}
	if f.Has("a") {
		t.Error("Has() = true on nil form")
	}
	if f.Len() != 0 || len(f.Values("a")) != 0 || len(f.All()) != 0 {
		t.Error("nil form should be empty")
	}
}
