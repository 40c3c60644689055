package core

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialValid(t *testing.T) {
	assert.True(t, Credential{AccessToken: "a", RefreshToken: "r"}.Valid())
	assert.False(t, Credential{AccessToken: "a"}.Valid())
	assert.False(t, Credential{RefreshToken: "r"}.Valid())
	assert.False(t, Credential{}.Valid())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "anonymous", StateAnonymous.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "refreshing_credential", StateRefreshing.String())

	var zero State
	assert.Equal(t, StateAnonymous, zero)
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"Phone number is already in use"}`, "Phone number is already in use"},
		{"error field", `{"error":"Invalid request"}`, "Invalid request"},
		{"plain text", "  Bad Gateway \n", "Bad Gateway"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseAPIError(http.StatusBadRequest, []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, err.Status)
			assert.Equal(t, tt.want, err.Message)
		})
	}

	assert.Equal(t, "booking api: status 409: taken", (&APIError{Status: 409, Message: "taken"}).Error())
	assert.Equal(t, "booking api: status 500", (&APIError{Status: 500}).Error())
}
