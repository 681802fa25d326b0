package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("BBKERNEL_HTTP_LOG_LEVEL"))

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logEvent returns the event for a request outcome at lvl, or nil when
// logging is below lvl. Errors log at LevelError and above.
func logEvent(r *http.Request, lvl LogLevel, status int) *zerolog.Event {
	var e *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError && lvl >= LevelError:
		e = zlog.Error()
	case status >= http.StatusBadRequest && lvl >= LevelError:
		e = zlog.Warn()
	case lvl >= LevelInfo:
		e = zlog.Info()
	default:
		return nil
	}
	e = e.Str("method", r.Method).Str("path", r.URL.Path).Int("status", status)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

// RequestLogger logs one line per request according to requestLogLevel.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		if lvl == LevelOff {
			next.ServeHTTP(w, r)
			return
		}
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		if e := logEvent(r, lvl, sr.status); e != nil {
			e.Dur("dur", time.Since(start)).Msg("request")
		}
	})
}
