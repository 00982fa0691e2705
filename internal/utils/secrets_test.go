package utils

import (
	"strings"
	"testing"

	"github.com/boxinggym/walkin-backend/pkg/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateServiceSecrets(t *testing.T) {
	staff, webhook, err := GenerateServiceSecrets()
	require.NoError(t, err)

	assert.Len(t, staff, 64)
	assert.True(t, strings.HasPrefix(webhook, payments.MockSecretPrefix))
	assert.False(t, strings.HasPrefix(webhook, "whsec_"))
	assert.Len(t, webhook, len(payments.MockSecretPrefix)+48)

	again, _, err := GenerateServiceSecrets()
	require.NoError(t, err)
	assert.NotEqual(t, staff, again)
}
