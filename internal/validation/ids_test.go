package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessionID(t *testing.T) {
	valid := "05" + strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		id      string
		errMsg  string
		wantErr bool
	}{
		{
			name:    "valid session id",
			id:      valid,
			wantErr: false,
		},
		{
			name:    "invalid - empty",
			id:      "",
			wantErr: true,
			errMsg:  "session ID cannot be empty",
		},
		{
			name:    "invalid - too short",
			id:      valid[:64],
			wantErr: true,
			errMsg:  "must be 66 characters long",
		},
		{
			name:    "invalid - wrong prefix",
			id:      "03" + strings.Repeat("ab", 32),
			wantErr: true,
			errMsg:  "must start with",
		},
		{
			name:    "invalid - uppercase hex",
			id:      "05" + strings.Repeat("AB", 32),
			wantErr: true,
			errMsg:  "lowercase hex",
		},
		{
			name:    "invalid - non hex",
			id:      "05" + strings.Repeat("zz", 32),
			wantErr: true,
			errMsg:  "lowercase hex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLegacyGroupID(t *testing.T) {
	assert.NoError(t, ValidateLegacyGroupID("05"+strings.Repeat("0", 64)))

	err := ValidateLegacyGroupID("123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid legacy group ID")
}

func TestValidatePubKey(t *testing.T) {
	assert.NoError(t, ValidatePubKey(strings.Repeat("0f", 32)))
	assert.Error(t, ValidatePubKey("05"+strings.Repeat("0f", 32)))
	assert.Error(t, ValidatePubKey(""))
}

func TestValidatePassphrase(t *testing.T) {
	tests := []struct {
		name       string
		passphrase string
		wantErr    bool
	}{
		{name: "valid", passphrase: "correct horse battery", wantErr: false},
		{name: "exactly min length", passphrase: "123456789012", wantErr: false},
		{name: "too short", passphrase: "short", wantErr: true},
		{name: "empty", passphrase: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassphrase(tt.passphrase)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
