package render

import (
	"errors"
	"html/template"
	"testing"

	"github.com/vango-dev/motion/pkg/component"
	"github.com/vango-dev/motion/pkg/vtest"
)

func TestTemplate(t *testing.T) {
	tmpl := template.Must(template.New("counter").Parse(`<span>{{.Count}}:{{.Label}}</span>`))
	c := vtest.NewComponent()
	c.Increment()
	c.SetLabel("<b>")

	out, err := Template(tmpl).Render(c)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "<span>1:&lt;b&gt;</span>"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}

func TestTemplate_Error(t *testing.T) {
	tmpl := template.Must(template.New("bad").Parse(`{{.Missing}}`))
	if _, err := Template(tmpl).Render(vtest.NewComponent()); err == nil {
		t.Error("Render() should fail for a missing field")
	}
}

func TestWrap(t *testing.T) {
	inner := Func(func(component.Component) (component.Output, error) { return "<p>x</p>", nil })

	out, err := Wrap(inner, `a"b`).Render(vtest.NewComponent())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := `<div data-motion-key="a&quot;b"><p>x</p></div>`; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}

	boom := errors.New("boom")
	failing := Func(func(component.Component) (component.Output, error) { return "", boom })
	if _, err := Wrap(failing, "k").Render(vtest.NewComponent()); !errors.Is(err, boom) {
		t.Errorf("Render() error = %v, want %v", err, boom)
	}
}

func TestCache_HitsByFingerprint(t *testing.T) {
	inner := vtest.NewRenderer()
	cache, err := Cached(inner, 8)
	if err != nil {
		t.Fatalf("Cached() error = %v", err)
	}

	c := vtest.NewComponent()
	first, _ := cache.Render(c)
	second, _ := cache.Render(c)
	if first != second {
		t.Errorf("cached output %q != %q", second, first)
	}
	if inner.Calls() != 1 {
		t.Errorf("inner renders = %d, want 1", inner.Calls())
	}

	c.Increment()
	if out, _ := cache.Render(c); out != "<div>1</div>" {
		t.Errorf("Render() = %q, want <div>1</div>", out)
	}
	if inner.Calls() != 2 {
		t.Errorf("inner renders = %d, want 2", inner.Calls())
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Stats() = %d, %d, want 1, 2", hits, misses)
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
	cache.Purge()
	if cache.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", cache.Len())
	}
}

func TestCache_BypassOnFingerprintError(t *testing.T) {
	inner := vtest.NewRenderer()
	cache, err := Cached(inner, 0)
	if err != nil {
		t.Fatal(err)
	}
	c := vtest.NewComponent()
	c.Fail(vtest.HookFingerprint, errors.New("x"))

	cache.Render(c)
	cache.Render(c)

	if inner.Calls() != 2 {
		t.Errorf("inner renders = %d, want 2", inner.Calls())
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cache.Len())
	}
}

func TestCache_Refresh(t *testing.T) {
	inner := vtest.NewRenderer()
	cache, err := Cached(inner, 4)
	if err != nil {
		t.Fatal(err)
	}
	var _ component.Refresher = cache

	c := vtest.NewComponent()
	cache.Render(c)
	out, err := cache.Refresh(c)
	if err != nil || out != "<div>0</div>" {
		t.Fatalf("Refresh() = %q, %v, want <div>0</div>", out, err)
	}
	if inner.Calls() != 2 {
		t.Errorf("inner renders = %d, want 2", inner.Calls())
	}

	// The refreshed output is served to later renders.
	cache.Render(c)
	if inner.Calls() != 2 {
		t.Errorf("inner renders = %d after cached Render, want 2", inner.Calls())
	}
	if hits, _ := cache.Stats(); hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestCache_DoesNotStoreErrors(t *testing.T) {
	inner := vtest.NewRenderer()
	inner.Fail(errors.New("boom"))
	cache, _ := Cached(inner, 4)
	c := vtest.NewComponent()

	if _, err := cache.Render(c); err == nil {
		t.Fatal("Render() should fail")
	}
	inner.Fail(nil)
	if out, err := cache.Render(c); err != nil || out != "<div>0</div>" {
		t.Errorf("Render() = %q, %v, want <div>0</div>", out, err)
	}
}
