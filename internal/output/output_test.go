package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{CodeUsage, ExitUsage},
		{CodeNotFound, ExitNotFound},
		{CodeAuth, ExitAuth},
		{CodeForbidden, ExitForbidden},
		{CodeRateLimit, ExitRateLimit},
		{CodeNetwork, ExitNetwork},
		{CodeAPI, ExitAPI},
		{"unknown_code", ExitAPI},
		{"", ExitAPI},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ExitCodeFor(tt.code); got != tt.expected {
				t.Errorf("ExitCodeFor(%q) = %d, want %d", tt.code, got, tt.expected)
			}
		})
	}
}

func TestErrorMessageIncludesHint(t *testing.T) {
	e := ErrUsageHint("missing path", "Pass an API path")
	if e.Error() != "missing path: Pass an API path" {
		t.Errorf("unexpected message %q", e.Error())
	}
	if e.ExitCode() != ExitUsage {
		t.Errorf("exit code = %d, want %d", e.ExitCode(), ExitUsage)
	}
}

func TestAsErrorMapsAPIKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"unauthorized", apierr.Unauthorized("bad secret"), CodeAuth, ExitAuth},
		{"forbidden", apierr.Forbidden("scope"), CodeForbidden, ExitForbidden},
		{"not found", apierr.NotFound("skill"), CodeNotFound, ExitNotFound},
		{"rate limited", apierr.RateLimited(time.Now().Add(time.Minute)), CodeRateLimit, ExitRateLimit},
		{"network", apierr.Network(errors.New("dial tcp: refused")), CodeNetwork, ExitNetwork},
		{"server", apierr.ServerError(http.StatusBadGateway, "bad gateway"), CodeAPI, ExitAPI},
		{"invalid response", apierr.InvalidResponse("not json", nil), CodeAPI, ExitAPI},
		{"wrapped", fmt.Errorf("calling skills: %w", apierr.NotFound("skill")), CodeNotFound, ExitNotFound},
		{"plain", errors.New("boom"), CodeAPI, ExitAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := AsError(tt.err)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
			if e.ExitCode() != tt.exit {
				t.Errorf("exit = %d, want %d", e.ExitCode(), tt.exit)
			}
		})
	}
}

func TestAsErrorKeepsOutputError(t *testing.T) {
	orig := ErrUsage("bad flag")
	if got := AsError(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("expected the original *Error back, got %+v", got)
	}
}

func TestErrRateLimitHint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if e := ErrRateLimit(now.Add(90*time.Second), now); e.Hint != "Try again in 90 seconds" {
		t.Errorf("hint = %q", e.Hint)
	}
	if e := ErrRateLimit(time.Time{}, now); e.Hint != "Try again later" {
		t.Errorf("hint = %q", e.Hint)
	}
	if e := ErrRateLimit(now.Add(-time.Second), now); e.Hint != "Try again later" {
		t.Errorf("hint for past reset = %q", e.Hint)
	}
}

func TestWriterOKJSON(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	err := w.OK(map[string]any{"id": "KS1"}, WithSummary("1 skill"), WithMeta("scope", "emsi_open"))
	if err != nil {
		t.Fatalf("OK: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Summary != "1 skill" || resp.Meta["scope"] != "emsi_open" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestWriterQuietDropsEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf})

	if err := w.OK(json.RawMessage(`{"id":"KS1"}`), WithSummary("ignored")); err != nil {
		t.Fatalf("OK: %v", err)
	}
	if strings.Contains(buf.String(), "ignored") || strings.Contains(buf.String(), `"ok"`) {
		t.Errorf("quiet output should contain only data, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"KS1"`) {
		t.Errorf("missing data in %s", buf.String())
	}
}

func TestWriterErr(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	if err := w.Err(apierr.Unauthorized("invalid_client")); err != nil {
		t.Fatalf("Err: %v", err)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK {
		t.Error("ok should be false")
	}
	if resp.Code != CodeAuth {
		t.Errorf("code = %q, want %q", resp.Code, CodeAuth)
	}
	if !strings.Contains(resp.Error, "invalid_client") {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Hint == "" {
		t.Error("expected a hint for auth errors")
	}
}

func TestAutoFormatIsJSONWhenPiped(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatAuto, Writer: &buf})

	if err := w.OK("hello"); err != nil {
		t.Fatalf("OK: %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("expected JSON for a non-TTY writer, got %q", buf.String())
	}
}

func TestStyledTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	data := []map[string]any{
		{"scope": "emsi_open", "ok": true},
		{"scope": "classification_api", "ok": false},
	}
	if err := w.OK(data, WithSummary("Token status")); err != nil {
		t.Fatalf("OK: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Token status", "Scope", "emsi_open", "classification_api", "yes", "no"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStyledObjectAndError(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	if err := w.OK(struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	}{"Python", 0.875}); err != nil {
		t.Fatalf("OK: %v", err)
	}
	if !strings.Contains(buf.String(), "Name") || !strings.Contains(buf.String(), "0.88") {
		t.Errorf("unexpected object rendering:\n%s", buf.String())
	}

	buf.Reset()
	if err := w.Err(ErrUsageHint("bad", "try again")); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if !strings.Contains(buf.String(), "Error: bad") || !strings.Contains(buf.String(), "Hint: try again") {
		t.Errorf("unexpected error rendering:\n%s", buf.String())
	}
}

func TestNormalizeData(t *testing.T) {
	got := NormalizeData(json.RawMessage(`[{"id":1},{"id":2}]`))
	maps, ok := got.([]map[string]any)
	if !ok || len(maps) != 2 {
		t.Fatalf("expected two maps, got %#v", got)
	}

	if mixed, ok := NormalizeData([]any{"a", 1.0}).([]any); !ok || len(mixed) != 2 {
		t.Errorf("mixed slices stay generic, got %#v", mixed)
	}

	if s := NormalizeData(json.RawMessage(`not json`)); s != "not json" {
		t.Errorf("invalid raw JSON should fall back to text, got %#v", s)
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"short", "short"},
		{strings.Repeat("x", 50), strings.Repeat("x", 37) + "..."},
		{true, "yes"},
		{3.0, "3"},
		{0.5, "0.50"},
		{[]any{map[string]any{"name": "Go"}, map[string]any{"id": "KS2"}, "raw"}, "Go, KS2, raw"},
	}
	for _, tt := range tests {
		if got := formatCell(tt.in); got != tt.want {
			t.Errorf("formatCell(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriterErrCarriesStatus(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	if err := w.Err(apierr.ServerError(503, "unavailable")); err != nil {
		t.Fatalf("Err: %v", err)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != 503 || !resp.Retryable {
		t.Errorf("status = %d retryable = %v, want 503 true", resp.Status, resp.Retryable)
	}
	if ExitCodeFor(resp.Code) != ExitAPI {
		t.Errorf("exit = %d, want %d", ExitCodeFor(resp.Code), ExitAPI)
	}
}
