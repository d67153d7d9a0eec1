// Package observability holds the structured audit loggers, Prometheus
// collectors and tracing setup shared by the repositories, services and hubs.
package observability

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var base atomic.Pointer[slog.Logger]

func init() {
	base.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// SetLogger routes audit logs through l, normally the request logger built at startup.
func SetLogger(l *slog.Logger) {
	if l != nil {
		base.Store(l)
	}
}

func current() *slog.Logger { return base.Load() }

// RepoLogger records state changes made by one repository.
type RepoLogger struct {
	table string
}

// NewRepoLogger returns the audit logger for table.
func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table}
}

func (l *RepoLogger) attrs(ctx context.Context, op string, extra []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(extra)+3)
	out = append(out, slog.String("table", l.table), slog.String("operation", op))
	if tid := ExtractTraceID(ctx); tid != "" {
		out = append(out, slog.String("trace_id", tid))
	}
	return append(out, extra...)
}

// Write logs a successful create, update or delete.
func (l *RepoLogger) Write(ctx context.Context, op string, attrs ...slog.Attr) {
	current().LogAttrs(ctx, slog.LevelInfo, "repository "+op, l.attrs(ctx, op, attrs)...)
}

// Fail logs a write that was rolled back.
func (l *RepoLogger) Fail(ctx context.Context, op string, err error) {
	current().LogAttrs(ctx, slog.LevelError, "repository error",
		l.attrs(ctx, op, []slog.Attr{slog.String("error", err.Error())})...)
}

// WSLogger records websocket session lifecycle for one hub.
type WSLogger struct {
	hub string
}

// NewWSLogger returns the lifecycle logger for hub.
func NewWSLogger(hub string) *WSLogger {
	return &WSLogger{hub: hub}
}

func (l *WSLogger) LogConnect(ctx context.Context, userID uint) {
	current().LogAttrs(ctx, slog.LevelInfo, "websocket connected",
		slog.String("hub", l.hub), slog.Uint64("user_id", uint64(userID)))
}

func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, reason string) {
	current().LogAttrs(ctx, slog.LevelInfo, "websocket disconnected",
		slog.String("hub", l.hub), slog.Uint64("user_id", uint64(userID)), slog.String("reason", reason))
}
