package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	ctx := context.Background()

	var dest map[string]string
	err := repo.Get(ctx, "calendar:years", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "calendar:years", map[string]string{"a": "b"}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "calendar:*"))

	count, err := repo.IncrementWithin(ctx, "verify:ABCD", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.NoError(t, repo.Ping(ctx))
}
