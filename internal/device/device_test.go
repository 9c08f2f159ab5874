package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("Mozilla/5.0", "10.0.0.1", "user@example.com")
	b := Fingerprint("Mozilla/5.0", "10.0.0.1", "USER@example.com")
	assert.Equal(t, a, b, "email сравнивается без учета регистра")
	assert.Len(t, a, 64)
}

func TestFingerprintDiffers(t *testing.T) {
	a := Fingerprint("Mozilla/5.0", "10.0.0.1", "user@example.com")
	b := Fingerprint("Mozilla/5.0", "10.0.0.2", "user@example.com")
	assert.NotEqual(t, a, b)
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "1.2.3.4", ClientIP("1.2.3.4, 5.6.7.8", "9.9.9.9"))
	assert.Equal(t, "1.2.3.4", ClientIP("1.2.3.4", "9.9.9.9"))
	assert.Equal(t, "9.9.9.9", ClientIP("", "9.9.9.9"))
}
