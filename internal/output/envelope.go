package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/charmbracelet/x/term"
)

// Response is the success envelope.
type Response struct {
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope. Status and Retryable are set when
// the failure came from the Lightcast API.
type ErrorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Hint      string `json:"hint,omitempty"`
	Status    int    `json:"status,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Format selects how envelopes are written.
type Format int

const (
	FormatAuto   Format = iota // styled on a terminal, JSON otherwise
	FormatJSON                 // indented JSON envelope
	FormatStyled               // lipgloss rendering, even when piped
	FormatQuiet                // data only, no envelope
)

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer // defaults to os.Stdout
}

// Writer prints envelopes in the configured format.
type Writer struct {
	format   Format
	resolved Format
	out      io.Writer
}

// New creates a writer. FormatAuto is resolved once against opts.Writer.
func New(opts Options) *Writer {
	out := opts.Writer
	if out == nil {
		out = os.Stdout
	}

	resolved := opts.Format
	if resolved == FormatAuto {
		resolved = FormatJSON
		if isTTY(out) {
			resolved = FormatStyled
		}
	}
	return &Writer{format: opts.Format, resolved: resolved, out: out}
}

// Format returns the format the writer was configured with.
func (w *Writer) Format() Format {
	return w.format
}

// OK writes a success envelope around data.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}

	switch w.resolved {
	case FormatQuiet:
		return w.json(resp.Data)
	case FormatStyled:
		return NewRenderer(w.out, true).RenderResponse(w.out, resp)
	default:
		return w.json(resp)
	}
}

// Err writes an error envelope for err.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	resp := &ErrorResponse{
		Error:     e.Message,
		Code:      e.Code,
		Hint:      e.Hint,
		Status:    e.HTTPStatus,
		Retryable: e.Retryable,
	}

	if w.resolved == FormatStyled {
		return NewRenderer(w.out, true).RenderError(w.out, resp)
	}
	return w.json(resp)
}

func (w *Writer) json(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary sets the one-line summary.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithMeta adds a metadata entry.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
