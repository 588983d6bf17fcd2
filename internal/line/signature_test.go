package line

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	secret := "channel-secret"

	assert.True(t, ValidateSignature(body, Sign(body, secret), secret))
	assert.False(t, ValidateSignature(body, Sign(body, "other-secret"), secret))
	assert.False(t, ValidateSignature(body, "not-a-signature", secret))
	assert.False(t, ValidateSignature([]byte(`tampered`), Sign(body, secret), secret))
}
