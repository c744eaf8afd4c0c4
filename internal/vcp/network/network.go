// Package network 定义外部网络服务的访问边界
// 地址分配和宿主机侧网络配置由外部服务完成，编排核心只依赖这里的接口
package network

import (
	"context"

	"github.com/jimyag/vcp/internal/vcp/entity"
)

// Service 网络服务接口
type Service interface {
	// AllocateForInstance 为实例分配网络资源（地址、网桥、MAC）
	AllocateForInstance(ctx context.Context, inst *entity.Instance) (*entity.NetworkInfo, error)

	// GetInstanceNetworkInfo 查询实例当前的网络配置
	GetInstanceNetworkInfo(ctx context.Context, inst *entity.Instance) (*entity.NetworkInfo, error)

	// SetupNetwork 配置宿主机侧网络（网桥、DHCP）
	// 幂等，迁移前后可以在源和目标宿主机上重复调用
	SetupNetwork(ctx context.Context, networkName string) error

	// TeardownHostNetworking 清理实例在本宿主机上的网络配置
	TeardownHostNetworking(ctx context.Context, inst *entity.Instance) error
}
