package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "jornada/pkg/domain-errors"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("s3nha-forte")
	require.NoError(t, err)
	assert.NotEqual(t, "s3nha-forte", hash)

	assert.NoError(t, Verify("s3nha-forte", hash))

	err = Verify("wrong-password", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestHash_RejectsShortAndLong(t *testing.T) {
	_, err := Hash("short")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = Hash(strings.Repeat("x", 80))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), MinPasswordLength)
}
