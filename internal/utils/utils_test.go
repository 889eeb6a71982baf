package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplay(t *testing.T) {
	assert.Equal(t, "512 B", DisplayB(512))
	assert.Equal(t, "1.50 KB", DisplayB(1500))
	assert.Equal(t, "8.00 KiB", DisplayBi(8192))
	assert.Equal(t, "2.00 MiB", DisplayBi(2<<20))
	assert.Equal(t, "8.00 KBPS", DisplayBPS(1000, time.Second))
	assert.Equal(t, "0 BPS", DisplayBPS(1000, 0))
}

func TestDefaultIfNil(t *testing.T) {
	assert.Equal(t, 3, DefaultIfNil(nil, 3))
	assert.Equal(t, 0, DefaultIfNil(Ptr(0), 3))
}

func TestNewULID(t *testing.T) {
	a, err := NewULID()
	assert.NoError(t, err)
	b, err := NewULID()
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}
