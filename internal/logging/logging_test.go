package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", &buf)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	Component(l, "engine").WithField("runs", 3).Debug("sweep started")
	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "runs=3")
	assert.Contains(t, out, `msg="sweep started"`)
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New("chatty", &buf)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	l.Debug("hidden")
	assert.Empty(t, buf.String())
}
