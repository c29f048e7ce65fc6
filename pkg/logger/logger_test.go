package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHelpersUsableBeforeInit(t *testing.T) {
	require.NotNil(t, Log)
	require.NotNil(t, Sugar)

	require.NotPanics(t, func() {
		Debug("debug before init")
		Info("info before init")
		Warn("warn before init", zap.String("path", "fallback"))
		Error("error before init")
		With(zap.String("k", "v")).Info("child logger")
		_ = Sync()
	})
}

func TestInitReplacesGlobalLogger(t *testing.T) {
	before := Log
	require.NoError(t, Init(&Config{Level: "debug", Format: "json"}))
	require.NotNil(t, Log)
	require.NotNil(t, Sugar)
	require.NotSame(t, before, Log)
}
