package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

// DefaultPattern is the line layout used when none is configured.
const DefaultPattern = "%d %p [%u]: %m"

// DateLayout is the %d rendering.
const DateLayout = "2006/01/02 15:04:05"

// PatternWriter renders zerolog JSON events as single text lines:
//
//	%d  timestamp (DateLayout)
//	%p  level, upper case
//	%u  the "user" field, "-" when absent
//	%m  message
//	%%  literal percent
//
// Unknown placeholders are copied verbatim. Every line ends with a newline.
type PatternWriter struct {
	mu      sync.Mutex
	out     io.Writer
	pattern string
	now     func() time.Time
}

// NewPatternWriter wraps out. An empty pattern selects DefaultPattern.
func NewPatternWriter(out io.Writer, pattern string) *PatternWriter {
	if pattern == "" {
		pattern = DefaultPattern
	}
	pattern = strings.TrimSuffix(pattern, "\n")
	return &PatternWriter{out: out, pattern: pattern, now: time.Now}
}

// Write implements io.Writer. zerolog hands over one event per call.
func (w *PatternWriter) Write(p []byte) (int, error) {
	var evt map[string]any
	if err := jsoniter.ConfigFastest.Unmarshal(p, &evt); err != nil {
		// not an event; pass through untouched
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.out.Write(p)
	}
	line := w.render(evt)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter.
func (w *PatternWriter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return w.Write(p)
}

func (w *PatternWriter) render(evt map[string]any) string {
	var b strings.Builder
	pat := w.pattern
	for i := 0; i < len(pat); i++ {
		c := pat[i]
		if c != '%' || i+1 >= len(pat) {
			b.WriteByte(c)
			continue
		}
		i++
		switch pat[i] {
		case 'd':
			b.WriteString(w.timestamp(evt).Format(DateLayout))
		case 'p':
			b.WriteString(strings.ToUpper(stringField(evt, zerolog.LevelFieldName, "")))
		case 'u':
			b.WriteString(stringField(evt, UserField, "-"))
		case 'm':
			b.WriteString(stringField(evt, zerolog.MessageFieldName, ""))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(pat[i])
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func (w *PatternWriter) timestamp(evt map[string]any) time.Time {
	if s, ok := evt[zerolog.TimestampFieldName].(string); ok {
		if t, err := time.Parse(zerolog.TimeFieldFormat, s); err == nil {
			return t
		}
	}
	return w.now()
}

func stringField(evt map[string]any, key, fallback string) string {
	v, ok := evt[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return fallback
		}
		return s
	}
	return fmt.Sprint(v)
}
