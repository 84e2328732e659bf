package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// The hook owns a collector on the default registry, so it is created at most once per process
var (
	metricsHookOnce sync.Once
	metricsHook     *promrus.PrometheusHook
	metricsHookErr  error
)

// ConfigureApplicationLogging sets up the standard logrus logger according to the supplied config. Console output
// always goes to stdout; if file logging is enabled the same entries are also written to a rotating log file.
// Log lines are counted by level in the log_messages_total metric of the default prometheus registry.
func ConfigureApplicationLogging(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := ParseLevel(c.Level)

	metricsHookOnce.Do(func() {
		metricsHook, metricsHookErr = promrus.NewPrometheusHook()
	})
	if metricsHookErr != nil {
		return errors.WithMessage(metricsHookErr, "could not register log metrics")
	}
	hooks := logrus.LevelHooks{}
	hooks.Add(metricsHook)

	logrus.SetLevel(level)
	logrus.SetFormatter(formatterFor(c.Format))
	logrus.SetOutput(outputFor(c))
	logrus.StandardLogger().ReplaceHooks(hooks)
	return nil
}

// ConfigureCommandLineLogging sets up a minimal logger suitable for one-shot cli commands
func ConfigureCommandLineLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logrus.SetOutput(os.Stdout)
}

func formatterFor(format string) logrus.Formatter {
	if strings.ToLower(format) == "json" {
		return &logrus.JSONFormatter{TimestampFormat: RFC3339Milli}
	}
	return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli}
}

func outputFor(c Config) io.Writer {
	if !c.File.Enabled {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   c.File.Path,
		MaxSize:    c.File.MaxSizeMb,
		MaxBackups: c.File.MaxBackups,
		MaxAge:     c.File.MaxAgeDays,
		Compress:   c.File.Compress,
	})
}
