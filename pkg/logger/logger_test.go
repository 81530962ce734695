package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	l, err := New(Config{Level: "debug", Format: format, Output: "stdout"})
	require.NoError(t, err)

	var buf bytes.Buffer
	l.SetOutput(&buf)
	return l, &buf
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestJSONOutputCarriesFields(t *testing.T) {
	l, buf := newBufferLogger(t, "json")

	l.RouterLogger("shop.example.com", "shop_example_com").
		WithError(errors.New("timeout")).
		Warn("Store lookup failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "Store lookup failed", entry["msg"])
	assert.Equal(t, "router", entry["component"])
	assert.Equal(t, "shop_example_com", entry["lookup_key"])
	assert.Equal(t, "timeout", entry["error"])
}

func TestFieldLoggersDoNotShareState(t *testing.T) {
	base := NewNop()
	a := base.WithField("a", 1)
	b := a.WithFields(logrus.Fields{"b": 2})

	assert.Empty(t, base.Fields())
	assert.Equal(t, logrus.Fields{"a": 1}, a.Fields())
	assert.Equal(t, logrus.Fields{"a": 1, "b": 2}, b.Fields())
}

func TestComponentLoggers(t *testing.T) {
	l := NewNop()

	assert.Equal(t, "admin_api", l.AdminLogger("update_config").Fields()["component"])
	assert.Equal(t, "redis", l.StoreLogger("redis").Fields()["backend"])
	assert.Equal(t, "rate_limiter", l.MiddlewareLogger("rate_limiter").Fields()["middleware"])
	assert.Equal(t, "req-1", l.RequestLogger("req-1", "GET", "/", "1.2.3.4:5").Fields()["request_id"])
}

func TestTextFormatAndLevelFilter(t *testing.T) {
	l, buf := newBufferLogger(t, "text")
	l.SetLevel(logrus.InfoLevel)

	l.Debug("hidden")
	l.WithField("port", 8080).Infof("listening on %d", 8080)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "listening on 8080")
	assert.Contains(t, out, "port=8080")
}

func TestFileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "router.log")
	l, err := New(Config{Level: "info", Output: "file", File: file})
	require.NoError(t, err)

	l.Info("written")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written"))
}
