package adapt

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestConsoleHandlerRendersOneLine(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, ConsoleHandlerOpts{}))

	logger.Info("gateway is ready", "resumed", true, "attempt", 3)

	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte{'\n'}))
	assert.Contains(t, out, "INFO ")
	assert.Contains(t, out, "gateway is ready")
	assert.Contains(t, out, "resumed=true")
	assert.Contains(t, out, "attempt=3")
}

func TestConsoleHandlerLevelTags(t *testing.T) {
	color.NoColor = true
	// Tags share a width so messages line up.
	assert.Equal(t, "DEBUG", levelTag(slog.LevelDebug))
	assert.Equal(t, "INFO ", levelTag(slog.LevelInfo))
	assert.Equal(t, "WARN ", levelTag(slog.LevelWarn))
	assert.Equal(t, "ERROR", levelTag(slog.LevelError))
}
