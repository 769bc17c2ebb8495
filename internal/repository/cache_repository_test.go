package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	ctx := context.Background()

	var dest map[string]int
	err := repo.Get(ctx, "impact:summary:curr-1", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "impact:summary:curr-1", map[string]int{"students": 1}, time.Minute))
	require.NoError(t, repo.Delete(ctx, "impact:summary:curr-1"))
	require.NoError(t, repo.DeleteByPattern(ctx, "impact:*"))
	require.NoError(t, repo.Close())
}
