package console

import (
	"os"

	"github.com/charmbracelet/log"
)

// Console writes log records to stderr via charmbracelet/log.
type Console struct {
	log *log.Logger
}

// Params configures a Console backend.
type Params struct {
	Debug bool
}

// New creates a stderr console backend. Debug enables DEBUG-level records.
func New(params Params) *Console {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	return &Console{
		log: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Level:           level,
		}),
	}
}

func (c *Console) Debug(message string, keyvals ...any) {
	c.log.Debug(message, keyvals...)
}

func (c *Console) Info(message string, keyvals ...any) {
	c.log.Info(message, keyvals...)
}

func (c *Console) Warn(message string, keyvals ...any) {
	c.log.Warn(message, keyvals...)
}

func (c *Console) Error(message string, keyvals ...any) {
	c.log.Error(message, keyvals...)
}

// Fatal logs the record and exits the process.
func (c *Console) Fatal(message string, keyvals ...any) {
	c.log.Fatal(message, keyvals...)
}
