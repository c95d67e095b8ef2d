// Package diag collects diagnostics raised by every compilation stage.
//
// A Reporter is created once per compilation run and handed to each stage.
// Stages only write to it; the orchestrator reads the error count between
// stages and decides whether to continue.
package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Severity classifies a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Diagnostic is one reported event.
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
}

// Reporter accumulates diagnostics and echoes them to w as they arrive. The
// format is either "text" or "json".
type Reporter struct {
	w        io.Writer
	format   string
	diags    []Diagnostic
	errors   int
	warnings int
}

// NewReporter returns a reporter writing to w. A nil writer keeps the
// diagnostics in memory only.
func NewReporter(w io.Writer, format string) *Reporter {
	if format == "" {
		format = "text"
	}
	return &Reporter{w: w, format: format}
}

// Error records a fatal diagnostic. format uses %1%, %2%, ... placeholders.
func (r *Reporter) Error(format string, args ...interface{}) {
	r.add(Diagnostic{Severity: Error, Message: Expand(format, args...)})
}

// ErrorCode records a fatal diagnostic tagged with a stable code.
func (r *Reporter) ErrorCode(code, format string, args ...interface{}) {
	r.add(Diagnostic{Severity: Error, Code: code, Message: Expand(format, args...)})
}

// Warning records a non-fatal diagnostic.
func (r *Reporter) Warning(format string, args ...interface{}) {
	r.add(Diagnostic{Severity: Warning, Message: Expand(format, args...)})
}

func (r *Reporter) add(d Diagnostic) {
	r.diags = append(r.diags, d)
	switch d.Severity {
	case Error:
		r.errors++
	case Warning:
		r.warnings++
	}
	r.emit(d)
}

func (r *Reporter) emit(d Diagnostic) {
	if r.w == nil {
		return
	}
	if r.format == "json" {
		payload := map[string]string{
			"severity": d.Severity.String(),
			"message":  d.Message,
		}
		if d.Code != "" {
			payload["code"] = d.Code
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintln(r.w, string(data))
		return
	}
	if d.Code != "" {
		fmt.Fprintf(r.w, "%s[%s]: %s\n", d.Severity, d.Code, d.Message)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", d.Severity, d.Message)
}

// HasErrors reports whether any fatal diagnostic was recorded.
func (r *Reporter) HasErrors() bool {
	return r != nil && r.errors > 0
}

// ErrorCount returns the number of fatal diagnostics. The count only grows.
func (r *Reporter) ErrorCount() int {
	if r == nil {
		return 0
	}
	return r.errors
}

// WarningCount returns the number of warnings.
func (r *Reporter) WarningCount() int {
	if r == nil {
		return 0
	}
	return r.warnings
}

// Diagnostics returns a copy of everything reported so far.
func (r *Reporter) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Expand substitutes %N% placeholders (1-based) with the string form of the
// matching argument. Unknown indices are left untouched and %% becomes %.
func Expand(format string, args ...interface{}) string {
	if !strings.Contains(format, "%") {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		end := strings.IndexByte(format[i+1:], '%')
		if end <= 0 {
			b.WriteByte(c)
			continue
		}
		idx, err := strconv.Atoi(format[i+1 : i+1+end])
		if err != nil || idx < 1 || idx > len(args) {
			b.WriteByte(c)
			continue
		}
		b.WriteString(toString(args[idx-1]))
		i += end + 1
	}
	return b.String()
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
