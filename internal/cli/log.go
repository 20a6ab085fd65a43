// Package cli implements the nlink command-line interface.
//
// The commands map the N-link rule over a page store: index builds the
// per-rule successor arrays, trace follows one page, terminals lists the
// HALT pages and cycles of a rule, basin and branches map what drains into a
// terminal, multiplex tracks pages across a range of rules and batch runs a
// file of job specs. The CLI is built on cobra and logs through
// charmbracelet/log.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context so long-running steps can report progress.
//
// # Example
//
//	import "github.com/matzehuels/nlink/internal/cli"
//
//	func main() {
//	    c := cli.New(os.Stderr, cli.LogInfo)
//	    if err := c.RootCommand().Execute(); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger returns a logger writing to w at level, with centisecond
// timestamps ("14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// stepTimer logs the completion of one CLI step, such as loading the page
// store, together with how long it took.
type stepTimer struct {
	logger *log.Logger
	start  time.Time
}

// newStepTimer starts a timer that logs through l.
func newStepTimer(l *log.Logger) *stepTimer {
	return &stepTimer{logger: l, start: time.Now()}
}

// done logs msg with the time since the timer started, in milliseconds.
func (p *stepTimer) done(msg string) {
	p.logger.Info(msg, "duration", time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger attaches l to ctx for loggerFromContext.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger stored by withLogger, or
// log.Default() when there is none.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
