package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := &Error{Type: ErrorTypeRateLimit, Message: "too many requests", Code: 429}
	assert.Equal(t, "rate_limit error (code 429): too many requests", err.Error())

	tagged := err.WithOrigin("twitter.request")
	assert.Equal(t, "twitter.request: rate_limit error (code 429): too many requests", tagged.Error())
	assert.Empty(t, err.Origin, "WithOrigin must not mutate the receiver")
}

func TestTypeOfWrapped(t *testing.T) {
	base := Upstream("missing data")
	wrapped := fmt.Errorf("fetch page 2: %w", base)

	assert.Equal(t, ErrorTypeUpstream, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeUpstream))
	assert.False(t, Is(wrapped, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.False(t, Is(nil, ErrorTypeUnknown))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Network(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorTypeNetwork, err.Type)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeServerError, true},
		{ErrorTypeAuth, false},
		{ErrorTypeUpstream, false},
		{ErrorTypeDataIntegrity, false},
		{ErrorTypeInvalidParams, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.errType))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(503))
	assert.False(t, IsRetryableStatusCode(401))
	assert.False(t, IsRetryableStatusCode(403))
	assert.False(t, IsRetryableStatusCode(404))
	assert.False(t, IsRetryableStatusCode(500))
}
