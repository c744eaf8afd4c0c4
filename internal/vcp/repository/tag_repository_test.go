package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jimyag/vcp/internal/vcp/repository/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRepository(t *testing.T) {
	t.Parallel()

	repo := setupTestDB(t)
	tagRepo := NewTagRepository(repo.DB())
	ctx := context.Background()

	t.Run("ReplaceAll and GetByInstance", func(t *testing.T) {
		tags := []*model.Tag{
			{InstanceID: "i-1", TagKey: "images", TagValue: "ref-a,ref-b", CreatedAt: time.Now()},
			{InstanceID: "i-1", TagKey: "blessed", TagValue: "true", CreatedAt: time.Now()},
		}
		require.NoError(t, tagRepo.ReplaceAll(ctx, "i-1", tags))

		got, err := tagRepo.GetByInstance(ctx, "i-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		// 保留写入顺序
		assert.Equal(t, "images", got[0].TagKey)
		assert.Equal(t, "ref-a,ref-b", got[0].TagValue)
		assert.Equal(t, "blessed", got[1].TagKey)
	})

	t.Run("ReplaceAll overwrites", func(t *testing.T) {
		require.NoError(t, tagRepo.ReplaceAll(ctx, "i-2", []*model.Tag{
			{InstanceID: "i-2", TagKey: "gc_src_host", TagValue: "host-a", CreatedAt: time.Now()},
		}))
		require.NoError(t, tagRepo.ReplaceAll(ctx, "i-2", []*model.Tag{
			{InstanceID: "i-2", TagKey: "gc_dst_host", TagValue: "host-b", CreatedAt: time.Now()},
		}))

		got, err := tagRepo.GetByInstance(ctx, "i-2")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "gc_dst_host", got[0].TagKey)
	})

	t.Run("ReplaceAll with empty clears", func(t *testing.T) {
		require.NoError(t, tagRepo.ReplaceAll(ctx, "i-3", []*model.Tag{
			{InstanceID: "i-3", TagKey: "blessed", TagValue: "true", CreatedAt: time.Now()},
		}))
		require.NoError(t, tagRepo.ReplaceAll(ctx, "i-3", nil))

		got, err := tagRepo.GetByInstance(ctx, "i-3")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("DeleteByInstance", func(t *testing.T) {
		require.NoError(t, tagRepo.ReplaceAll(ctx, "i-4", []*model.Tag{
			{InstanceID: "i-4", TagKey: "images", TagValue: "", CreatedAt: time.Now()},
		}))
		require.NoError(t, tagRepo.DeleteByInstance(ctx, "i-4"))

		got, err := tagRepo.GetByInstance(ctx, "i-4")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
