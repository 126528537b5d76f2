package cimrepo

import (
	"context"
	"log/slog"
)

type Options struct {
	Context context.Context
	Logger  *slog.Logger
	Verbose bool

	// NoMmap reads pages with ReadAt instead of mapping the repository files.
	NoMmap bool

	// ExportConcurrency bounds the number of namespaces exported at once.
	ExportConcurrency int
}

const DefaultExportConcurrency = 4

func (o Options) withDefaults() Options {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ExportConcurrency <= 0 {
		o.ExportConcurrency = DefaultExportConcurrency
	}
	return o
}

// logSink carries the logging context shared by the components of one
// repository.
type logSink struct {
	ctx     context.Context
	logger  *slog.Logger
	verbose bool
}

func (o Options) sink() logSink {
	o = o.withDefaults()
	return logSink{o.Context, o.Logger, o.Verbose}
}

func (l logSink) warn(msg string, attrs ...slog.Attr) {
	l.logger.LogAttrs(l.ctx, slog.LevelWarn, msg, attrs...)
}

func (l logSink) info(msg string, attrs ...slog.Attr) {
	l.logger.LogAttrs(l.ctx, slog.LevelInfo, msg, attrs...)
}

// debug only logs in verbose mode.
func (l logSink) debug(msg string, attrs ...slog.Attr) {
	if l.verbose {
		l.logger.LogAttrs(l.ctx, slog.LevelDebug, msg, attrs...)
	}
}
