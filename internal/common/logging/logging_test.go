package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := map[string]struct {
		config  Config
		wantErr bool
	}{
		"text": {
			config: Config{Format: "text"},
		},
		"json debug": {
			config: Config{Level: "debug", Format: "json"},
		},
		"bad level": {
			config:  Config{Level: "loud", Format: "text"},
			wantErr: true,
		},
		"bad format": {
			config:  Config{Level: "info", Format: "xml"},
			wantErr: true,
		},
		"file without path": {
			config:  Config{Level: "info", Format: "text", File: FileConfig{Enabled: true, MaxSizeMb: 10}},
			wantErr: true,
		},
		"file": {
			config: Config{Level: "info", Format: "text", File: FileConfig{Enabled: true, Path: "/tmp/x.log", MaxSizeMb: 10}},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidate_EmptyFormatIsText(t *testing.T) {
	// the zero value of Format is rejected unless defaults are applied
	assert.Error(t, Config{Level: "info"}.Validate())
}

func TestJsonFormatter(t *testing.T) {
	logger := logrus.New()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	logger.SetFormatter(formatterFor("JSON"))

	logger.WithField("table", "login_events").Info("flushed")

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "flushed", out["msg"])
	assert.Equal(t, "login_events", out["table"])
}

func TestConfigureApplicationLogging_File(t *testing.T) {
	defer logrus.SetOutput(logrus.StandardLogger().Out)
	path := filepath.Join(t.TempDir(), "eventhouse.log")
	err := ConfigureApplicationLogging(Config{
		Level:  "warn",
		Format: "text",
		File:   FileConfig{Enabled: true, Path: path, MaxSizeMb: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	logrus.SetLevel(logrus.InfoLevel)
}

func TestConfigureApplicationLogging_CountsLogLinesByLevel(t *testing.T) {
	out := logrus.StandardLogger().Out
	defer func() {
		logrus.SetOutput(out)
		logrus.StandardLogger().ReplaceHooks(logrus.LevelHooks{})
	}()
	require.NoError(t, ConfigureApplicationLogging(Config{Level: "info", Format: "json"}))
	logrus.SetOutput(io.Discard)

	warnings, errs, debugs := logMessages(t, "warning"), logMessages(t, "error"), logMessages(t, "debug")
	logrus.Warn("clickhouse slow to respond")
	logrus.Warn("clickhouse slow to respond")
	logrus.Error("insert failed")
	logrus.Debug("below the configured level")

	assert.Equal(t, warnings+2, logMessages(t, "warning"))
	assert.Equal(t, errs+1, logMessages(t, "error"))
	assert.Equal(t, debugs, logMessages(t, "debug"))

	// Reconfiguring replaces the hook rather than stacking another one
	require.NoError(t, ConfigureApplicationLogging(Config{Level: "info", Format: "json"}))
	logrus.SetOutput(io.Discard)
	logrus.Warn("once")
	assert.Equal(t, warnings+3, logMessages(t, "warning"))
}

func logMessages(t *testing.T, level string) float64 {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), "log_messages") {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "level" && label.GetValue() == level {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestWithStacktrace(t *testing.T) {
	err := errors.WithMessage(errors.New("boom"), "wrapped")
	entry := WithStacktrace(logrus.NewEntry(logrus.New()), err)
	assert.Equal(t, err, entry.Data[logrus.ErrorKey])
	assert.NotNil(t, entry.Data[Stacktrace])
}
