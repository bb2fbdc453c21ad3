package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"
)

// Palette used when styling is on.
var (
	colorPrimary = lipgloss.Color("#5BA4E6")
	colorMuted   = lipgloss.Color("#8A8F98")
	colorText    = lipgloss.Color("#E6E6E6")
	colorError   = lipgloss.Color("#E5484D")
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Header  lipgloss.Style
}

// NewRenderer creates a renderer. Styling is enabled when writing to a TTY,
// or when forceStyled is true, unless NO_COLOR is set.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	// lipgloss.NewRenderer does not carry the profile through in this
	// version, so set it globally.
	if styled {
		lipgloss.SetColorProfile(2) // TrueColor
	} else {
		lipgloss.SetColorProfile(0) // Ascii
	}

	r := &Renderer{width: width, styled: styled}
	if !styled {
		return r
	}
	r.Summary = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(colorMuted)
	r.Data = lipgloss.NewStyle().Foreground(colorText)
	r.Error = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	r.Header = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 80
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(f.Fd()); err == nil && cols >= 40 {
			width = cols
		}
		isTTY = term.IsTerminal(f.Fd())
	}
	return width, isTTY
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}
	r.renderData(&b, NormalizeData(resp.Data))

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")
	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)") + "\n")
			return
		}
		r.renderTable(b, d)
	case map[string]any:
		r.renderObject(b, d)
	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)") + "\n")
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• "+formatCell(item)) + "\n")
		}
	case string:
		b.WriteString(r.Data.Render(d) + "\n")
	case nil:
		b.WriteString(r.Muted.Render("(no data)") + "\n")
	default:
		b.WriteString(r.Data.Render(fmt.Sprintf("%v", data)) + "\n")
	}
}

// Column priority for tables and objects (lower = higher priority).
var columnPriority = map[string]int{
	"id":         1,
	"name":       2,
	"title":      2,
	"scope":      2,
	"key":        2,
	"value":      3,
	"ok":         3,
	"source":     4,
	"confidence": 5,
	"type":       6,
	"expires_at": 8,
}

type column struct {
	key      string
	priority int
	width    int
}

func (r *Renderer) renderTable(b *strings.Builder, data []map[string]any) {
	cols := r.selectColumns(detectColumns(data[0]), data)
	if len(cols) == 0 {
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header
			}
			if col < len(cols) && cols[col].key == "id" {
				return r.Muted
			}
			return r.Data
		})

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = formatHeader(c.key)
	}
	t.Headers(headers...)

	for _, item := range data {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = formatCell(item[c.key])
		}
		t.Row(row...)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
}

// detectColumns lists the scalar fields of row by priority.
func detectColumns(row map[string]any) []column {
	var cols []column
	for key, val := range row {
		if _, nested := val.(map[string]any); nested {
			continue
		}
		p := columnPriority[key]
		if p == 0 {
			p = 50
		}
		cols = append(cols, column{key: key, priority: p})
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].priority != cols[j].priority {
			return cols[i].priority < cols[j].priority
		}
		return cols[i].key < cols[j].key
	})
	return cols
}

// selectColumns drops the lowest-priority columns until the table fits.
func (r *Renderer) selectColumns(cols []column, data []map[string]any) []column {
	for i := range cols {
		cols[i].width = lipgloss.Width(formatHeader(cols[i].key))
		for _, row := range data {
			if w := lipgloss.Width(formatCell(row[cols[i].key])); w > cols[i].width {
				cols[i].width = w
			}
		}
		cols[i].width = min(cols[i].width, 40)
	}

	const padding = 2
	for len(cols) > 1 {
		total := 0
		for _, c := range cols {
			total += c.width + padding
		}
		if total <= r.width {
			break
		}
		cols = cols[:len(cols)-1]
	}
	return cols
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	cols := detectColumns(data)
	if len(cols) == 0 {
		b.WriteString(r.Muted.Render("(no data)") + "\n")
		return
	}

	maxLen := 0
	for _, c := range cols {
		maxLen = max(maxLen, len(formatHeader(c.key)))
	}
	for _, c := range cols {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(c.key)))
		b.WriteString(label + r.Data.Render(formatCell(data[c.key])) + "\n")
	}
}

func formatHeader(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		if len(v) > 40 {
			return v[:37] + "..."
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.2f", v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					items = append(items, name)
					continue
				}
				if id, ok := m["id"]; ok {
					items = append(items, fmt.Sprintf("%v", id))
					continue
				}
			}
			items = append(items, formatCell(item))
		}
		return strings.Join(items, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// NormalizeData converts typed values and json.RawMessage into the generic
// shapes the renderer understands.
func NormalizeData(data any) any {
	var generic any
	switch d := data.(type) {
	case nil, string, []map[string]any, map[string]any:
		return data
	case json.RawMessage:
		if err := json.Unmarshal(d, &generic); err != nil {
			return string(d)
		}
	default:
		buf, err := json.Marshal(data)
		if err != nil {
			return data
		}
		if err := json.Unmarshal(buf, &generic); err != nil {
			return data
		}
	}

	if list, ok := generic.([]any); ok {
		maps := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return list
			}
			maps = append(maps, m)
		}
		return maps
	}
	return generic
}
