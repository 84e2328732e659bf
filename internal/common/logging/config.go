package logging

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Config defines logging configuration.
type Config struct {
	// Log level, e.g. info, error etc
	Level string
	// Logging format, either text or json
	Format string
	// Defines configuration for file logging
	File FileConfig
}

type FileConfig struct {
	// Whether file logging is enabled.
	Enabled bool
	// The Location of the logfile on disk
	Path string
	// Maximum size in megabytes of the log file before it gets rotated
	MaxSizeMb int
	// Maximum number of old log files to retain
	MaxBackups int
	// Maximum number of days to retain old log files
	MaxAgeDays int
	// Whether to compress rotated log files
	Compress bool
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	if err := validateLogFormat(c.Format); err != nil {
		return err
	}
	if c.File.Enabled {
		if c.File.Path == "" {
			return errors.New("file.path must be set when file logging is enabled")
		}
		if c.File.MaxSizeMb <= 0 {
			return errors.New("file.maxSizeMb must be greater than zero")
		}
	}
	return nil
}

func validateLogFormat(f string) error {
	if _, ok := validLogFormats[strings.ToLower(f)]; !ok {
		formats := maps.Keys(validLogFormats)
		slices.Sort(formats)
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, formats)
	}
	return nil
}

// ParseLevel is logrus.ParseLevel with an info default for the empty string
func ParseLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, errors.Errorf("unknown level: %s", level)
	}
	return l, nil
}
