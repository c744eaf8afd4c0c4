package manager

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jimyag/vcp/internal/vcp/bus"
	"github.com/jimyag/vcp/internal/vcp/driver"
	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/internal/vcp/inventory"
	"github.com/jimyag/vcp/internal/vcp/network"
	"github.com/jimyag/vcp/internal/vcp/repository"
)

const testHost = "node-1"

// noteRecorder 记录发出的生命周期事件
type noteRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (n *noteRecorder) Notify(_ context.Context, _ *entity.Instance, operation string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, operation)
	return nil
}

func (n *noteRecorder) operations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ops...)
}

type fixture struct {
	m     *Manager
	inv   *inventory.Gateway
	drv   *driver.MockDriver
	bus   *bus.MockBus
	net   *network.MockService
	notes *noteRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := repository.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	inv := inventory.NewWithRetry(repo, time.Millisecond, 2)
	drv := &driver.MockDriver{}
	b := &bus.MockBus{}
	netSvc := network.NewMockService()
	notes := &noteRecorder{}

	m := New(Config{
		Host: testHost,
		Node: testHost,
		// 测试不做路由探测
		OutboundMigrationAddress: "192.0.2.10",
	}, inv, drv, b, netSvc, notes)

	return &fixture{m: m, inv: inv, drv: drv, bus: b, net: netSvc, notes: notes}
}

// createInstance 直接写入一条实例记录和元数据
func (f *fixture) createInstance(t *testing.T, inst *entity.Instance, md map[string]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.inv.Create(ctx, inst))
	if md != nil {
		require.NoError(t, f.inv.MetadataUpdate(ctx, inst.ID, md))
	}
}

// createBlessed 写入一条 blessed 模板记录
func (f *fixture) createBlessed(t *testing.T, id string, images string) {
	t.Helper()
	launchedAt := time.Now().UTC()
	f.createInstance(t, &entity.Instance{
		ID:               id,
		Name:             id,
		VMState:          entity.VMStateBlessed,
		Host:             testHost,
		Node:             testHost,
		LaunchedAt:       &launchedAt,
		DisableTerminate: true,
	}, map[string]string{
		entity.TagImages:  images,
		entity.TagBlessed: "true",
	})
}
