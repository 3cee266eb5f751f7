package summary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
)

func TestInMemory_SaveFind(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	driverID := domain.NewDriverID()

	_, err := store.Find(ctx, driverID, "2025-03-10")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	summary := newSummary(driverID, "2025-03-10")
	require.NoError(t, store.Save(ctx, summary))
	summary.Anomalies[0] = "mutated"

	got, err := store.Find(ctx, driverID, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "daily work exceeds limit: 08:30 > 08:00", got.Anomalies[0])
}
