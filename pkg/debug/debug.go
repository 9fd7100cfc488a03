// Package debug gates verbose logging behind named categories.
//
// Categories choose which subsystems log at debug level
// (TENANTGATE_DEBUG=auth,cache). The log level
// (TENANTGATE_LOG_LEVEL) chooses how much detail reaches the handler;
// TRACE additionally prints webhook bodies and script sources.
package debug

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// Category names a subsystem with its own debug switch.
type Category string

const (
	Auth    Category = "auth"
	Cache   Category = "cache"
	Script  Category = "script"
	HTTP    Category = "http"
	Storage Category = "storage"
	Config  Category = "config"

	all Category = "all"
)

// Known lists the categories accepted by Init.
var Known = []Category{Auth, Cache, Script, HTTP, Storage, Config}

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// maxExcerpt bounds payload excerpts written at TRACE.
const maxExcerpt = 2048

var enabled atomic.Pointer[map[Category]bool]

func init() {
	set := parseCategories(os.Getenv("TENANTGATE_DEBUG"))
	enabled.Store(&set)
}

// Init installs the default slog handler. Environment variables win over
// the configured categories and level. Unknown categories are reported and
// ignored.
func Init(configCategories, configLevel, format string) {
	cats := os.Getenv("TENANTGATE_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	level := os.Getenv("TENANTGATE_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	set := parseCategories(cats)
	for c := range set {
		if c != all && !slices.Contains(Known, c) {
			slog.Warn("unknown debug category ignored", "category", c)
			delete(set, c)
		}
	}
	enabled.Store(&set)
}

// Enabled reports whether category logs at debug level.
func Enabled(c Category) bool {
	set := *enabled.Load()
	return set[all] || set[c]
}

// Log emits a debug record tagged with its category.
func Log(c Category, msg string, args ...any) {
	if !Enabled(c) {
		return
	}
	slog.Debug(msg, append([]any{"debug", c}, args...)...)
}

// Trace emits a TRACE record carrying payload, cut to a bounded excerpt.
func Trace(c Category, msg, payload string, args ...any) {
	if !Enabled(c) || !slog.Default().Enabled(context.Background(), LevelTrace) {
		return
	}
	if len(payload) > maxExcerpt {
		payload = payload[:maxExcerpt] + "..."
	}
	args = append([]any{"debug", c, "payload", payload}, args...)
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// ParseLevel maps a level name to a slog.Level, defaulting to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseCategories(s string) map[Category]bool {
	m := make(map[Category]bool)
	for _, part := range strings.Split(s, ",") {
		if c := strings.TrimSpace(strings.ToLower(part)); c != "" {
			m[Category(c)] = true
		}
	}
	return m
}
