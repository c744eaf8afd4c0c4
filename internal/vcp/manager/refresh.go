package manager

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/internal/vcp/inventory"
)

// RefreshHost 对账一遍本宿主机的实例
// 宿主机在迁移中途宕机会把实例留在 MIGRATING。按（本机是否在跑这个
// 虚拟机）×（本机记录为源还是目标）四种组合修复，源和目标各自独立、
// 幂等地跑自己的对账，最终收敛。扫描在全局锁下进行：被锁住的实例
// 有操作在途，BUILDING 或 MIGRATING 都是正常的，跳过
func (m *Manager) RefreshHost(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	return m.locks.WithGlobal(func(isLocked func(id string) bool) error {
		instances, err := m.inv.GetAllByHost(ctx, m.cfg.Host)
		if err != nil {
			return err
		}
		running, err := m.drv.ListRunning(ctx)
		if err != nil {
			return err
		}
		runningSet := make(map[string]struct{}, len(running))
		for _, name := range running {
			runningSet[name] = struct{}{}
		}

		for _, inst := range instances {
			if isLocked(inst.ID) {
				continue
			}
			if inst.VMState != entity.VMStateMigrating {
				continue
			}

			md, err := m.inv.MetadataGet(ctx, inst.ID)
			if err != nil {
				logger.Error().Err(err).Str("instance_id", inst.ID).Msg("Error reading metadata during refresh")
				continue
			}
			srcHost := md[entity.TagSrcHost]
			dstHost := md[entity.TagDstHost]

			state := ""
			host := m.cfg.Host
			_, isRunning := runningSet[inst.Name]

			switch {
			case isRunning && m.cfg.Host == srcHost:
				// 迁出失败的回滚：虚拟机还在本机跑，没有迁移在进行，
				// 把记录改回现实
				state = entity.VMStateActive

			case isRunning && m.cfg.Host == dstHost:
				// 正常不会走到这里，唯一的可能是源宿主机把虚拟机
				// 推过来之后没能写完记录。源端的网络配置也要重下一次
				state = entity.VMStateActive
				if err := m.migrationReconfigureNetworks(ctx, inst, srcHost); err != nil {
					logger.Error().Err(err).Str("instance_id", inst.ID).
						Msg("Error reconfiguring networks during refresh")
				}

			case !isRunning && m.cfg.Host == srcHost:
				// 虚拟机可能已经搬走但记录的宿主机没改，改过去，
				// 状态留给目标端自己的对账去收敛
				state = entity.VMStateMigrating
				host = dstHost

			case !isRunning && m.cfg.Host == dstHost:
				// 虚拟机没到达，也不可能回到源端了，只能标记错误
				state = entity.VMStateError
			}

			if state == "" {
				continue
			}
			if err := m.inv.Update(ctx, inst.ID, inventory.Fields{
				"vm_state": state,
				"host":     host,
			}); err != nil {
				logger.Error().Err(err).Str("instance_id", inst.ID).Msg("Error updating instance during refresh")
			}
		}
		return nil
	})
}
