// Package driver 是 hypervisor 的访问边界
// 编排层只通过这里的接口操作虚拟机，所有底层调用失败都以 error
// 返回，由上层的状态机决定补偿动作
package driver

import (
	"context"

	"github.com/jimyag/vcp/internal/vcp/entity"
)

// Driver hypervisor 驱动接口
//
// Bless 把运行中的源域冻结为一组模板产物（内存镜像、域定义、磁盘），
// 返回模板名称、内存访问地址和产物路径列表。migrationURL 非空时
// 产物只服务于一次迁移，不进入镜像库
//
// Launch 从模板产物启动新域。targetPages 大于 0 时限制克隆的内存
// 页预算；migrationURL 非空表示这是迁移接收端的启动
type Driver interface {
	Bless(ctx context.Context, sourceName string, inst *entity.Instance, migrationURL string) (name, url string, blessedFiles []string, err error)
	PostBless(ctx context.Context, inst *entity.Instance, blessedFiles []string) (imageRefs []string, err error)
	BlessCleanup(ctx context.Context, blessedFiles []string) error
	Discard(ctx context.Context, name string, imageRefs []string) error
	Launch(ctx context.Context, sourceName string, inst *entity.Instance, netInfo *entity.NetworkInfo, targetPages uint64, migrationURL string, imageRefs []string, params map[string]string) error
	PreMigration(ctx context.Context, inst *entity.Instance, netInfo *entity.NetworkInfo, migrationURL string) error
	PostMigration(ctx context.Context, inst *entity.Instance, netInfo *entity.NetworkInfo, migrationURL string) error
	ListRunning(ctx context.Context) ([]string, error)
}
