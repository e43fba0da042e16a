package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogger_CachesPerComponent(t *testing.T) {
	a := GetLogger("component-a")
	b := GetLogger("component-a")
	assert.Same(t, a, b)

	c := GetLogger("component-b")
	assert.NotSame(t, a, c)
}

func TestSetupLogging_AppliesLevel(t *testing.T) {
	l := GetLogger("level-test")
	require := SetupLogging(&LoggingConfig{Level: "warn", ConsoleEnabled: true})
	assert.NoError(t, require)
	assert.Equal(t, "warning", l.GetLevel().String())
}

func TestCorrelationID_RoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", CorrelationIDFromContext(ctx))
	assert.Equal(t, "", CorrelationIDFromContext(context.Background()))
}

func TestGenerateCorrelationID_Unique(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	assert.NotEqual(t, a, b)
}
