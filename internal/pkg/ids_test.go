package pkg

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGameID(t *testing.T) {
	first, err := GenerateGameID()
	require.NoError(t, err)

	second, err := GenerateGameID()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	_, err = uuid.Parse(first)
	assert.NoError(t, err)
}

func TestGenerateNewSessionID(t *testing.T) {
	id := GenerateNewSessionID()

	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, GenerateNewSessionID())
}
