package go_func_utils

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeGo_RunsFunction(t *testing.T) {
	logger := log.New(&bytes.Buffer{}, "", 0)
	done := make(chan struct{})
	SafeGo(logger, func() { close(done) })
	<-done
}

func TestGuard_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	ok := Guard(logger, "signal", func() { panic("speaker unplugged") })

	assert.False(t, ok)
	assert.Contains(t, buf.String(), "signal panicked: speaker unplugged")
}

func TestGuard_NoPanic(t *testing.T) {
	logger := log.New(&bytes.Buffer{}, "", 0)
	called := false
	assert.True(t, Guard(logger, "noop", func() { called = true }))
	assert.True(t, called)
}
