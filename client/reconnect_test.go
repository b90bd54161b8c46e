package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelaySequence(t *testing.T) {
	base := 5 * time.Second
	assert.Equal(t, 5000*time.Millisecond, backoffDelay(base, 1))
	assert.Equal(t, 7500*time.Millisecond, backoffDelay(base, 2))
	assert.Equal(t, 11250*time.Millisecond, backoffDelay(base, 3))
}
