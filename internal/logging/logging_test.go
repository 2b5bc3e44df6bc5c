package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetup_Level(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, Setup("debug", "text").GetLevel())
	assert.Equal(t, logrus.WarnLevel, Setup("WARN", "json").GetLevel())
	assert.Equal(t, logrus.InfoLevel, Setup("verbose", "text").GetLevel())
}

func TestSetup_Format(t *testing.T) {
	_, isJSON := Setup("info", "json").Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	_, isText := Setup("info", "").Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() {
		logger.WithField("k", "v").Error("dropped")
	})
}
