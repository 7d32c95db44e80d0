package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer; nil disables logging.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

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
	case "off":
		return LevelOff
	case "error":
		return LevelError
	case "", "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from BREEDSERVE_HTTP_LOG.
var defaultLogLevel = parseLevel(os.Getenv("BREEDSERVE_HTTP_LOG"))

func requestLogLevel(r *http.Request) LogLevel {
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

// logEvent returns a log event for the request at lvl, or nil when the
// request's level or the missing logger suppresses it.
func logEvent(r *http.Request, lvl LogLevel) *zerolog.Event {
	if zlog == nil || requestLogLevel(r) < lvl {
		return nil
	}
	var e *zerolog.Event
	switch lvl {
	case LevelError:
		e = zlog.Error()
	case LevelDebug:
		e = zlog.Debug()
	default:
		e = zlog.Info()
	}
	e = e.Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

// logEnd records the outcome of an inference request. Server errors log at
// error level, everything else at info.
func logEnd(r *http.Request, op string, status int, start time.Time, err error) {
	lvl := LevelInfo
	if status >= 500 && status != http.StatusServiceUnavailable {
		lvl = LevelError
	}
	e := logEvent(r, lvl)
	if e == nil {
		return
	}
	if err != nil {
		e = e.Err(err)
	}
	e.Int("status", status).Dur("dur", time.Since(start)).Msg(op + " end")
}
