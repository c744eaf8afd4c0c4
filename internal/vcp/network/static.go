package network

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/rs/zerolog"
)

// StaticService 是 Service 的内置实现：所有实例接入同一个桥接网络，
// 地址由 DHCP 下发，MAC 从实例 ID 派生保证稳定。
// 适合单一扁平网络的部署，复杂拓扑应接入外部网络服务
type StaticService struct {
	networkName string
	bridge      string
}

// NewStaticService 创建静态网络服务
func NewStaticService(networkName, bridge string) *StaticService {
	if networkName == "" {
		networkName = "default"
	}
	if bridge == "" {
		bridge = "br0"
	}
	return &StaticService{networkName: networkName, bridge: bridge}
}

var _ Service = (*StaticService)(nil)

// AllocateForInstance 为实例分配网络资源
func (s *StaticService) AllocateForInstance(ctx context.Context, inst *entity.Instance) (*entity.NetworkInfo, error) {
	return &entity.NetworkInfo{
		NICs: []entity.NIC{{
			Network:   s.networkName,
			Bridge:    s.bridge,
			MAC:       macForInstance(inst.ID),
			MultiHost: true,
		}},
	}, nil
}

// GetInstanceNetworkInfo 查询实例当前的网络配置
// 静态实现里和分配结果一致
func (s *StaticService) GetInstanceNetworkInfo(ctx context.Context, inst *entity.Instance) (*entity.NetworkInfo, error) {
	return s.AllocateForInstance(ctx, inst)
}

// SetupNetwork 配置宿主机侧网络，幂等
// 桥接网络由宿主机系统预先建好，这里只做存在性日志
func (s *StaticService) SetupNetwork(ctx context.Context, networkName string) error {
	zerolog.Ctx(ctx).Debug().
		Str("network", networkName).
		Str("bridge", s.bridge).
		Msg("Host network setup requested")
	return nil
}

// TeardownHostNetworking 清理实例在本宿主机上的网络配置
func (s *StaticService) TeardownHostNetworking(ctx context.Context, inst *entity.Instance) error {
	zerolog.Ctx(ctx).Debug().
		Str("instance_id", inst.ID).
		Msg("Host network teardown requested")
	return nil
}

// macForInstance 从实例 ID 派生稳定的本地管理 MAC 地址
func macForInstance(id string) string {
	sum := sha256.Sum256([]byte(id))
	// 52:54 是 QEMU 的惯用前缀
	return fmt.Sprintf("52:54:%02x:%02x:%02x:%02x", sum[0], sum[1], sum[2], sum[3])
}
