package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWith_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWith(&buf, "debug", "")

	l.WithField("session_id", "sess-1").Debug("call state changed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "call state changed", line["message"])
	assert.Equal(t, "sess-1", line["session_id"])
	assert.Equal(t, "debug", line["level"])
}

func TestNewWith_LevelFallback(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, NewWith(&bytes.Buffer{}, "loud", "").GetLevel())
	assert.Equal(t, logrus.WarnLevel, NewWith(&bytes.Buffer{}, "warning", "").GetLevel())
}

func TestNewWith_Text(t *testing.T) {
	var buf bytes.Buffer
	NewWith(&buf, "info", "TEXT").Info("hello")
	assert.Contains(t, buf.String(), `msg=hello`)
}
