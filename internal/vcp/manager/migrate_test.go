package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/vcp/internal/vcp/bus"
	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/pkg/apierror"
)

const migrateDest = "node-2"

func migrateFixture(t *testing.T) (*fixture, *entity.NetworkInfo) {
	t.Helper()
	f := newFixture(t)
	f.createInstance(t, &entity.Instance{
		ID: "i-1", Name: "i-1", VMState: entity.VMStateActive, Host: testHost,
	}, nil)

	netInfo := &entity.NetworkInfo{NICs: []entity.NIC{
		{Network: "default", Bridge: "br0", MAC: "52:54:00:00:00:01", MultiHost: true},
	}}
	f.net.On("GetInstanceNetworkInfo", mock.Anything, mock.Anything).Return(netInfo, nil)
	return f, netInfo
}

func TestMigrateInstance(t *testing.T) {
	t.Parallel()

	f, netInfo := migrateFixture(t)
	ctx := context.Background()

	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicCompute, migrateDest), "pre_live_migration",
		mock.Anything, nil).Return(nil)
	f.drv.On("Bless", mock.Anything, "i-1", mock.Anything, "tcp://192.0.2.10").
		Return("i-1", "file:///shared/i-1.mem", []string{"f1"}, nil)
	f.drv.On("PostBless", mock.Anything, mock.Anything, []string{"f1"}).Return([]string{"r1"}, nil)
	f.drv.On("BlessCleanup", mock.Anything, []string{"f1"}).Return(nil)
	f.drv.On("PreMigration", mock.Anything, mock.Anything, netInfo, "file:///shared/i-1.mem").Return(nil)
	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicVCP, migrateDest), "launch_instance",
		LaunchCallArgs{InstanceID: "i-1", MigrationURL: "file:///shared/i-1.mem", NetworkInfo: netInfo}, nil).
		Return(nil)
	f.drv.On("PostMigration", mock.Anything, mock.Anything, netInfo, "file:///shared/i-1.mem").Return(nil)
	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicCompute, testHost), "rollback_live_migration",
		mock.Anything, nil).Return(nil)
	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicNetwork, testHost), "setup_network",
		setupNetworkArgs{Network: "default"}, nil).Return(nil)
	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicNetwork, migrateDest), "setup_network",
		setupNetworkArgs{Network: "default"}, nil).Return(nil)
	f.drv.On("Discard", mock.Anything, "i-1", []string{"r1"}).Return(nil)

	require.NoError(t, f.m.Migrate(ctx, "i-1", migrateDest))

	md, err := f.inv.MetadataGet(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, testHost, md[entity.TagSrcHost])
	assert.Equal(t, migrateDest, md[entity.TagDstHost])

	f.drv.AssertExpectations(t)
	f.bus.AssertExpectations(t)
}

func TestMigrateRemoteLaunchFailureFallsBackLocally(t *testing.T) {
	t.Parallel()

	f, netInfo := migrateFixture(t)
	ctx := context.Background()

	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicCompute, migrateDest), "pre_live_migration",
		mock.Anything, nil).Return(nil)
	f.drv.On("Bless", mock.Anything, "i-1", mock.Anything, "tcp://192.0.2.10").
		Return("i-1", "file:///shared/i-1.mem", []string{"f1"}, nil)
	f.drv.On("PostBless", mock.Anything, mock.Anything, []string{"f1"}).Return([]string{"r1"}, nil)
	f.drv.On("BlessCleanup", mock.Anything, []string{"f1"}).Return(nil)
	f.drv.On("PreMigration", mock.Anything, mock.Anything, netInfo, "file:///shared/i-1.mem").Return(nil)
	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicVCP, migrateDest), "launch_instance",
		mock.Anything, nil).Return(errors.New("destination unreachable"))
	// 远端失败后用同一套产物在本机重新 launch
	f.drv.On("Launch", mock.Anything, "i-1", mock.Anything, netInfo, uint64(0),
		"file:///shared/i-1.mem", []string{"r1"}, map[string]string(nil)).Return(nil)
	f.drv.On("PostMigration", mock.Anything, mock.Anything, netInfo, "file:///shared/i-1.mem").Return(nil)
	f.drv.On("Discard", mock.Anything, "i-1", []string{"r1"}).Return(nil)

	require.NoError(t, f.m.Migrate(ctx, "i-1", migrateDest))

	// 实例回到原宿主机继续运行
	got, err := f.inv.Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VMStateActive, got.VMState)
	assert.Equal(t, testHost, got.Host)
	assert.Empty(t, got.TaskState)

	// 没有换宿主机，不做源端清理
	f.bus.AssertNotCalled(t, "Call", mock.Anything, bus.QueueFor(bus.TopicCompute, testHost),
		"rollback_live_migration", mock.Anything, nil)
	f.drv.AssertExpectations(t)
}

func TestMigrateRejectsInstanceOnAnotherHost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createInstance(t, &entity.Instance{
		ID: "i-1", Name: "i-1", VMState: entity.VMStateActive, Host: "node-9",
	}, nil)

	err := f.m.Migrate(context.Background(), "i-1", migrateDest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierror.ErrIncorrectInstanceState))

	// 前置检查失败不触碰任何状态
	got, err := f.inv.Get(context.Background(), "i-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VMStateActive, got.VMState)
	assert.Equal(t, "node-9", got.Host)
}

func TestMigrateBlessFailureAborts(t *testing.T) {
	t.Parallel()

	f, _ := migrateFixture(t)
	ctx := context.Background()

	induced := errors.New("induced bless failure")
	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicCompute, migrateDest), "pre_live_migration",
		mock.Anything, nil).Return(nil)
	f.drv.On("Bless", mock.Anything, "i-1", mock.Anything, "tcp://192.0.2.10").
		Return("", "", nil, induced)

	err := f.m.Migrate(ctx, "i-1", migrateDest)
	require.ErrorIs(t, err, induced)

	// bless 失败时实例还在本机好好跑着
	got, err := f.inv.Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VMStateActive, got.VMState)
	assert.Equal(t, testHost, got.Host)
	f.drv.AssertNotCalled(t, "PreMigration", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMigrateChecksVolumeExport(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.createInstance(t, &entity.Instance{
		ID: "i-1", Name: "i-1", VMState: entity.VMStateActive, Host: testHost,
	}, map[string]string{entity.TagVolumes: "vol-1"})

	induced := errors.New("volume export not ready")
	f.bus.On("Call", mock.Anything, bus.QueueFor(bus.TopicVolume, testHost), "check_for_export",
		checkForExportArgs{InstanceID: "i-1"}, nil).Return(induced)

	err := f.m.Migrate(ctx, "i-1", migrateDest)
	require.ErrorIs(t, err, induced)
	f.bus.AssertExpectations(t)
}
