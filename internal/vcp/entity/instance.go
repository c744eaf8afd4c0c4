// Package entity 定义业务实体
package entity

import "time"

// 实例的 vm_state 取值
// DELETED 是终态，进入后记录本身会被删除
const (
	VMStateBuilding  = "building"
	VMStateActive    = "active"
	VMStateBlessed   = "blessed"
	VMStateMigrating = "migrating"
	VMStateError     = "error"
	VMStateDeleted   = "deleted"
)

// 实例的 task_state 取值
// 操作完成或硬失败时清空为 ""
const (
	TaskStateNetworking = "networking"
	TaskStateSpawning   = "spawning"
)

// Tag metadata 中持久化的 key，构成对外契约，必须精确往返
const (
	TagImages       = "images"        // 逗号连接的镜像引用列表，空串表示空列表
	TagBlessed      = "blessed"       // 是否为 blessed 模板
	TagSrcHost      = "gc_src_host"   // 迁移源宿主机
	TagDstHost      = "gc_dst_host"   // 迁移目标宿主机
	TagBlessedFrom  = "blessed_from"  // blessed 实例的来源实例 ID
	TagLaunchedFrom = "launched_from" // launched 实例的来源模板 ID
	TagVolumes      = "volumes"       // 挂载的外部卷列表（逗号连接）
)

// Instance 实例信息，编排的基本单元
type Instance struct {
	ID               string     `json:"id"`                // Instance ID: i-{id}
	Name             string     `json:"name"`              // hypervisor 中的域名称
	VMState          string     `json:"vm_state"`          // 生命周期状态
	TaskState        string     `json:"task_state"`        // 进行中操作的子状态
	Host             string     `json:"host"`              // 当前宿主机
	Node             string     `json:"node"`              // 当前计算节点
	LaunchedAt       *time.Time `json:"launched_at"`       // 首次成功启动时间，只设置一次
	TerminatedAt     *time.Time `json:"terminated_at"`     // 销毁时间，只设置一次
	DisableTerminate bool       `json:"disable_terminate"` // blessed 模板禁止普通删除
}

// NetworkInfo 实例的网络配置，迁移时整体随 RPC 传递
type NetworkInfo struct {
	NICs []NIC `json:"nics"`
}

// NIC 单个虚拟网卡配置
type NIC struct {
	Network   string `json:"network"`    // 所属网络名称
	Bridge    string `json:"bridge"`     // 宿主机网桥
	MAC       string `json:"mac"`        // MAC 地址
	IP        string `json:"ip"`         // 分配的地址
	MultiHost bool   `json:"multi_host"` // 网络是否由各宿主机各自负责
}

// BlessInstanceRequest 将运行中的实例冻结为模板
type BlessInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

// BlessInstanceResponse bless 结果
type BlessInstanceResponse struct {
	Instance *Instance `json:"instance"`
}

// LaunchInstanceRequest 从模板启动新实例
type LaunchInstanceRequest struct {
	InstanceID string            `json:"instance_id"`      // blessed 模板的实例 ID
	Target     string            `json:"target,omitempty"` // 内存页预算，如 "512MB"，空串表示不限制
	Params     map[string]string `json:"params,omitempty"` // 透传给驱动的额外参数
}

// LaunchInstanceResponse launch 结果
type LaunchInstanceResponse struct {
	Instance *Instance `json:"instance"`
}

// MigrateInstanceRequest 将运行中的实例迁移到另一台宿主机
type MigrateInstanceRequest struct {
	InstanceID string `json:"instance_id"`
	Dest       string `json:"dest"` // 目标宿主机名称
}

// DiscardInstanceRequest 释放 blessed 模板
type DiscardInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

// ListLaunchedInstancesRequest 列出某个 blessed 模板启动的实例
type ListLaunchedInstancesRequest struct {
	InstanceID string `json:"instance_id"` // blessed 模板的实例 ID
}

// ListLaunchedInstancesResponse list_launched 结果
type ListLaunchedInstancesResponse struct {
	Instances []*Instance `json:"instances"`
}

// ListBlessedInstancesRequest 列出某个实例冻结出的 blessed 模板
type ListBlessedInstancesRequest struct {
	InstanceID string `json:"instance_id"`
}

// ListBlessedInstancesResponse list_blessed 结果
type ListBlessedInstancesResponse struct {
	Instances []*Instance `json:"instances"`
}

// DescribeInstanceRequest 查询单个实例
type DescribeInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

// DescribeInstanceResponse 查询结果
type DescribeInstanceResponse struct {
	Instance *Instance         `json:"instance"`
	Metadata map[string]string `json:"metadata"`
}
