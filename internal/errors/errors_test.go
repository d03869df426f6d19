package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "protocol mismatch",
			code:    CodeProtocolIncompatible,
			wantMsg: "Protocol version mismatch",
			wantCat: CategoryProtocol,
		},
		{
			name:    "delivery failure",
			code:    CodeRoutingDeliveryFailure,
			wantMsg: "Broadcast delivery failed",
			wantCat: CategoryRouting,
		},
		{
			name:    "config error",
			code:    CodeInvalidConfig,
			wantMsg: "Invalid motion.json",
			wantCat: CategoryConfig,
		},
		{
			name:    "unknown error code",
			code:    "M999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategorySession, "session %q closed", "abc")
	if err.Message != `session "abc" closed` {
		t.Errorf("Message = %q, want %q", err.Message, `session "abc" closed`)
	}
	if err.Category != CategorySession {
		t.Errorf("Category = %q, want %q", err.Category, CategorySession)
	}
}

func TestMotionError_Error(t *testing.T) {
	err := New(CodeMotionFailure)
	if got, want := err.Error(), "M003: Motion failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err.Wrap(fmt.Errorf("boom"))
	if got, want := err.Error(), "M003: Motion failed: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := &MotionError{Message: "test error"}
	if plain.Error() != "test error" {
		t.Errorf("Error() = %q, want %q", plain.Error(), "test error")
	}
}

func TestMotionError_Builders(t *testing.T) {
	err := New(CodeBroadcastFailure).
		WithDetail("custom detail").
		WithSuggestion("check the handler").
		WithField("topic", "room:1").
		WithField("session_id", "s1")

	if err.Detail != "custom detail" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Suggestion != "check the handler" {
		t.Errorf("Suggestion = %q", err.Suggestion)
	}
	if err.Fields["topic"] != "room:1" || err.Fields["session_id"] != "s1" {
		t.Errorf("Fields = %v", err.Fields)
	}
}

func TestMotionError_Wrap(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	err := New(CodeRenderFailure).Wrap(sentinel)

	if !stderrors.Is(err, sentinel) {
		t.Error("errors.Is should find the wrapped error")
	}
	if err.Unwrap() != sentinel {
		t.Error("Unwrap() should return the wrapped error")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, CodeMotionFailure) != nil {
		t.Error("FromError(nil) should return nil")
	}

	std := stderrors.New("plain")
	me := FromError(std, CodeMotionFailure)
	if me.Code != CodeMotionFailure || me.Wrapped != std {
		t.Errorf("FromError(std) = %+v", me)
	}

	orig := New(CodeConnectFailure)
	wrapped := fmt.Errorf("outer: %w", orig)
	if got := FromError(wrapped, CodeMotionFailure); got != orig {
		t.Error("FromError should return the MotionError already in the chain")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(stderrors.New("x")) != "" {
		t.Error("CodeOf(plain) should be empty")
	}
	err := fmt.Errorf("ctx: %w", New(CodeSubscribeFailure))
	if got := CodeOf(err); got != CodeSubscribeFailure {
		t.Errorf("CodeOf = %q, want %q", got, CodeSubscribeFailure)
	}
}

func TestFormat(t *testing.T) {
	SetColors(false)
	defer SetColors(true)

	err := New(CodeRoutingDeliveryFailure).
		WithField("topic", "room:1").
		WithSuggestion("return errors instead of panicking").
		Wrap(stderrors.New("nil map write"))

	formatted := err.Format()

	for _, want := range []string{
		"M005",
		"Broadcast delivery failed",
		"topic = room:1",
		"Cause: nil map write",
		"Hint:",
		"Learn more:",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("Format() missing %q:\n%s", want, formatted)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New(CodeMotionFailure).WithField("session_id", "s1").WithField("motion", "inc")

	want := "M003: Motion failed motion=inc session_id=s1"
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestGetAllCodes(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("GetAllCodes() should return codes")
	}
	if !sort.StringsAreSorted(codes) {
		t.Errorf("GetAllCodes() = %v, want sorted", codes)
	}

	found := false
	for _, code := range codes {
		if code == CodeDisconnectFailure {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("%s should be in the codes list", CodeDisconnectFailure)
	}
}

func TestGetTemplate(t *testing.T) {
	template, ok := GetTemplate(CodeConnectFailure)
	if !ok {
		t.Fatalf("%s should exist", CodeConnectFailure)
	}
	if template.Message != "Component failed to connect" {
		t.Errorf("Template message = %q", template.Message)
	}

	if _, ok := GetTemplate("M999"); ok {
		t.Error("M999 should not exist")
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("short text", 100)
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("wrapText short text: got %v", got)
	}

	got = wrapText("this is a longer text that should be wrapped", 20)
	if len(got) != 3 {
		t.Errorf("wrapText long text: expected 3 lines, got %d: %v", len(got), got)
	}

	got = wrapText("", 10)
	if len(got) != 0 {
		t.Errorf("wrapText empty: expected empty, got %v", got)
	}
}

func TestColorFunctions(t *testing.T) {
	SetColors(true)
	if !strings.Contains(red("test"), "\033[31m") {
		t.Error("red should contain ANSI code when colors enabled")
	}

	SetColors(false)
	if strings.Contains(red("test"), "\033[") {
		t.Error("red should not contain ANSI code when colors disabled")
	}
	SetColors(true)
}

func TestFprintError(t *testing.T) {
	SetColors(false)
	defer SetColors(true)

	var b strings.Builder
	FprintError(&b, fmt.Errorf("load: %w", New(CodeInvalidPort).
		WithDetail("port 70000 is out of range").
		WithSuggestion("use a port between 1 and 65535")))
	for _, want := range []string{"M042", "port 70000 is out of range", "Hint: use a port between 1 and 65535"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("FprintError() missing %q:\n%s", want, b.String())
		}
	}

	b.Reset()
	FprintError(&b, stderrors.New("plain failure"))
	if got := b.String(); !strings.Contains(got, "ERROR: plain failure") {
		t.Errorf("FprintError(plain) = %q", got)
	}
}
