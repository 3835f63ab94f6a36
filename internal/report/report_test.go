package report

import (
	"bytes"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestLogOnlyWithoutToken(t *testing.T) {
	Init("", "test", "dev")
	assert.False(t, enabled.Load())

	buf := captureLog(t)
	Warn("class due to open has no building location", map[string]interface{}{"code": "CS101"})
	Error("sweep: class failed", errors.New("connection reset"), map[string]interface{}{"class_id": "c1"})
	Close()

	out := buf.String()
	assert.Contains(t, out, "warning: class due to open has no building location")
	assert.Contains(t, out, "CS101")
	assert.Contains(t, out, "sweep: class failed: connection reset")
}
