package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository/postgres"
	"github.com/devflow/devflow-api/internal/testutil"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/metrics"
)

func TestOutboxCleanupWorker_Cleanup(t *testing.T) {
	db := testutil.NewTestDB(t)
	base := postgres.NewBaseRepository(db)
	repo := postgres.NewOutboxRepository(base)
	ctx := context.Background()

	require.NoError(t, base.WithTx(ctx, func(tx *sqlx.Tx) error {
		return repo.CreateTx(ctx, tx, &model.OutboxEvent{EventType: "x", Payload: json.RawMessage(`{}`)})
	}))
	claimed, err := repo.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, repo.MarkProcessed(ctx, claimed[0].ID))

	w := NewOutboxCleanupWorker(repo, 7, time.Hour, logger.Nop(), metrics.New("test"))

	deleted, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted, "event is inside retention")

	w.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	deleted, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
