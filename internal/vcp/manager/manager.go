// Package manager 实现克隆编排核心
// bless / launch / migrate / discard 四个协议都是多步 saga，每一步
// 定义了失败边界和补偿动作。所有对实例状态的修改都在持有实例锁的
// 前提下进行
package manager

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/bus"
	"github.com/jimyag/vcp/internal/vcp/driver"
	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/internal/vcp/inventory"
	"github.com/jimyag/vcp/internal/vcp/network"
	"github.com/jimyag/vcp/pkg/apierror"
	"github.com/jimyag/vcp/pkg/idgen"
)

// Config 编排核心配置
type Config struct {
	Host string // 本宿主机名称，也是消息队列的宿主机段
	Node string // 计算节点标识，通常和 Host 相同

	// 对外迁移地址，设置后跳过路由探测直接使用
	OutboundMigrationAddress string
}

// Manager 编排核心
type Manager struct {
	cfg      Config
	inv      *inventory.Gateway
	drv      driver.Driver
	bus      bus.Bus
	network  network.Service
	notifier Notifier
	locks    *InstanceLocks
	ids      *idgen.Generator
}

// New 创建编排核心
func New(cfg Config, inv *inventory.Gateway, drv driver.Driver, b bus.Bus, netSvc network.Service, notifier Notifier) *Manager {
	if cfg.Node == "" {
		cfg.Node = cfg.Host
	}
	return &Manager{
		cfg:      cfg,
		inv:      inv,
		drv:      drv,
		bus:      b,
		network:  netSvc,
		notifier: notifier,
		locks:    NewInstanceLocks(),
		ids:      idgen.DefaultGenerator(),
	}
}

// Host 返回本宿主机名称
func (m *Manager) Host() string {
	return m.cfg.Host
}

type lockOwnerKey struct{}

// withInstanceLock 持有实例锁执行 fn
// 持有者标识随 context 传递，同一条调用链内的嵌套加锁是重入而不是
// 死锁（migrate 内部会再进入 bless 和 launch）
func (m *Manager) withInstanceLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	owner, ok := ctx.Value(lockOwnerKey{}).(int64)
	if !ok {
		owner = m.locks.NewOwner()
		ctx = context.WithValue(ctx, lockOwnerKey{}, owner)
	}

	zerolog.Ctx(ctx).Debug().Str("instance_id", id).Msg("Locking instance")
	m.locks.Acquire(owner, id)
	defer func() {
		m.locks.Release(owner, id)
		zerolog.Ctx(ctx).Debug().Str("instance_id", id).Msg("Unlocked instance")
	}()

	return fn(ctx)
}

// Describe 查询实例及其元数据
func (m *Manager) Describe(ctx context.Context, instanceID string) (*entity.Instance, map[string]string, error) {
	inst, err := m.inv.Get(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	md, err := m.inv.MetadataGet(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	return inst, md, nil
}

// ListLaunched 列出从指定 blessed 模板启动的所有实例
func (m *Manager) ListLaunched(ctx context.Context, blessedID string) ([]*entity.Instance, error) {
	if _, err := m.inv.Get(ctx, blessedID); err != nil {
		return nil, err
	}
	return m.inv.GetAllByTag(ctx, entity.TagLaunchedFrom, blessedID)
}

// ListBlessed 列出从指定实例冻结出的所有 blessed 模板
func (m *Manager) ListBlessed(ctx context.Context, sourceID string) ([]*entity.Instance, error) {
	if _, err := m.inv.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	return m.inv.GetAllByTag(ctx, entity.TagBlessedFrom, sourceID)
}

// getSourceInstance 解析实例的来源
// launched 实例的来源是 blessed 模板，blessed 模板的来源是被冻结的
// 实例，两级谱系，找不到来源返回 nil
func (m *Manager) getSourceInstance(ctx context.Context, instanceID string) (*entity.Instance, error) {
	md, err := m.inv.MetadataGet(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	sourceID := md[entity.TagLaunchedFrom]
	if sourceID == "" {
		sourceID = md[entity.TagBlessedFrom]
	}
	if sourceID == "" {
		return nil, nil
	}
	return m.inv.Get(ctx, sourceID)
}

// extractImageRefs 从元数据取出镜像引用列表
// 空串代表空列表，不是单个空引用
func extractImageRefs(md map[string]string) []string {
	raw := md[entity.TagImages]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// migrationAddress 计算本机面向 dest 的出站迁移地址
// 配置了固定地址时直接使用，否则用一次 UDP 连接探测内核为 dest
// 选择的源地址。探测不会发包
func (m *Manager) migrationAddress(dest string) (string, error) {
	if m.cfg.OutboundMigrationAddress != "" {
		return m.cfg.OutboundMigrationAddress, nil
	}

	conn, err := net.Dial("udp", net.JoinHostPort(dest, "4160"))
	if err != nil {
		return "", fmt.Errorf("no route to destination %s: %w", dest, err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	if addr.IP.IsLoopback() {
		return "", apierror.WrapError(apierror.ErrInvalidParameterValue,
			"can't migrate to the same host", nil)
	}
	return addr.IP.String(), nil
}

// migrationReconfigureNetworks 迁移后重配宿主机侧网络
// 只有 multi_host 网络需要：各宿主机各自负责自己实例的网络，本机和
// 对端（迁移时是目标宿主机，对账修复时是源宿主机）都要重新下发一次
// 配置。dest 为空时只配置本机
func (m *Manager) migrationReconfigureNetworks(ctx context.Context, inst *entity.Instance, dest string) error {
	netInfo, err := m.network.GetInstanceNetworkInfo(ctx, inst)
	if err != nil {
		return err
	}

	for _, nic := range netInfo.NICs {
		if !nic.MultiHost {
			continue
		}
		args := setupNetworkArgs{Network: nic.Network}
		if err := m.bus.Call(ctx, bus.QueueFor(bus.TopicNetwork, m.cfg.Host), "setup_network", args, nil); err != nil {
			return err
		}
		if dest != "" {
			if err := m.bus.Call(ctx, bus.QueueFor(bus.TopicNetwork, dest), "setup_network", args, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// newDerivedInstance 创建一条从 source 派生的新实例记录
func (m *Manager) newDerivedInstance(ctx context.Context, source *entity.Instance, lineageTag string, disableTerminate bool) (*entity.Instance, error) {
	id, err := m.ids.GenerateInstanceID()
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "generate instance id", err)
	}

	inst := &entity.Instance{
		ID:               id,
		Name:             id,
		VMState:          entity.VMStateBuilding,
		Host:             source.Host,
		Node:             source.Node,
		DisableTerminate: disableTerminate,
	}
	if err := m.inv.Create(ctx, inst); err != nil {
		return nil, err
	}
	if err := m.inv.MetadataUpdate(ctx, id, map[string]string{lineageTag: source.ID}); err != nil {
		return nil, err
	}
	return inst, nil
}

// 消息总线上的参数结构

type setupNetworkArgs struct {
	Network string `json:"network"`
}

type preLiveMigrationArgs struct {
	InstanceID string `json:"instance_id"`
}

type checkForExportArgs struct {
	InstanceID string `json:"instance_id"`
}

type rollbackLiveMigrationArgs struct {
	InstanceID string `json:"instance_id"`
}

// LaunchCallArgs 跨宿主机 launch_instance 调用的参数
type LaunchCallArgs struct {
	InstanceID   string              `json:"instance_id"`
	MigrationURL string              `json:"migration_url"`
	NetworkInfo  *entity.NetworkInfo `json:"network_info"`
}

func utcnow() *time.Time {
	t := time.Now().UTC()
	return &t
}
