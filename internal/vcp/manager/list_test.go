package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/pkg/apierror"
)

func TestListLaunched(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.createBlessed(t, "i-bless", "image1")
	f.createInstance(t, &entity.Instance{
		ID: "i-2", Name: "i-2", VMState: entity.VMStateActive, Host: testHost,
	}, map[string]string{entity.TagLaunchedFrom: "i-bless"})
	f.createInstance(t, &entity.Instance{
		ID: "i-3", Name: "i-3", VMState: entity.VMStateActive, Host: testHost,
	}, map[string]string{entity.TagLaunchedFrom: "i-bless"})
	// 别的模板启动的实例不应出现在结果里
	f.createInstance(t, &entity.Instance{
		ID: "i-4", Name: "i-4", VMState: entity.VMStateActive, Host: testHost,
	}, map[string]string{entity.TagLaunchedFrom: "i-other"})

	instances, err := f.m.ListLaunched(ctx, "i-bless")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "i-2", instances[0].ID)
	assert.Equal(t, "i-3", instances[1].ID)
}

func TestListLaunchedEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.createBlessed(t, "i-bless", "image1")

	instances, err := f.m.ListLaunched(ctx, "i-bless")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestListLaunchedNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.m.ListLaunched(context.Background(), "i-missing")
	assert.ErrorIs(t, err, apierror.ErrInstanceNotFound)
}

func TestListBlessed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.createInstance(t, &entity.Instance{
		ID: "i-1", Name: "i-1", VMState: entity.VMStateActive, Host: testHost,
	}, nil)
	f.createInstance(t, &entity.Instance{
		ID: "i-b1", Name: "i-b1", VMState: entity.VMStateBlessed, Host: testHost,
	}, map[string]string{entity.TagBlessedFrom: "i-1"})
	f.createInstance(t, &entity.Instance{
		ID: "i-b2", Name: "i-b2", VMState: entity.VMStateBlessed, Host: testHost,
	}, map[string]string{entity.TagBlessedFrom: "i-1"})

	instances, err := f.m.ListBlessed(ctx, "i-1")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "i-b1", instances[0].ID)
	assert.Equal(t, "i-b2", instances[1].ID)
}
