package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFetchMiss(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Fetch(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	payload := []byte{9, 8, 7, 6}

	require.NoError(t, s.Store(ctx, "k", payload))
	got, err := s.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	got[0] = 0
	got2, err := s.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, byte(9), got2[0], "stored copy must not alias the caller's slice")
}
