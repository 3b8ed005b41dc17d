package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler_Shutdown(t *testing.T) {
	h := NewHandler()
	assert.False(t, h.IsShutdown())

	select {
	case <-h.Done():
		t.Fatal("done channel closed before shutdown")
	default:
	}

	h.Shutdown()
	assert.True(t, h.IsShutdown())
	select {
	case <-h.Done():
	default:
		t.Fatal("done channel not closed after shutdown")
	}

	// Repeated shutdowns are harmless.
	h.Shutdown()
	assert.True(t, h.IsShutdown())
}
