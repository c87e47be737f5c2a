package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"struk/internal/core"
)

func TestMemoryStore_RoundTripDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := &core.UserDocument{UserID: "u1", Receipts: []core.Receipt{sampleReceipt("r1")}}
	require.NoError(t, s.WriteUserDocument(ctx, doc))

	doc.Receipts[0].ID = "mutated"
	got, err := s.ReadUserDocument(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.Receipts[0].ID)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_FailNext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.FailNext(errors.New("unreachable"))

	_, err := s.ReadUserDocument(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	_, err = s.ReadUserDocument(ctx, "u1")
	assert.ErrorIs(t, err, ErrDocumentAbsent)
}
