package manager

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/bus"
	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/pkg/apierror"
)

// Migrate 把运行中的实例迁移到 dest 宿主机
// 这是一个跨两台宿主机的 saga：本机 bless 出迁移产物，远端 launch
// 接收。前置检查通过之后，实例总会落在两台宿主机之一，此后各步的
// 目标从"要么成功要么回滚"变成尽量少泄漏资源，失败一律记日志继续
func (m *Manager) Migrate(ctx context.Context, instanceID, dest string) error {
	return m.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		return m.doMigrate(ctx, instanceID, dest)
	})
}

func (m *Manager) doMigrate(ctx context.Context, instanceID, dest string) error {
	logger := zerolog.Ctx(ctx)

	inst, err := m.inv.Get(ctx, instanceID)
	if err != nil {
		return err
	}

	// 两个迁移请求同时到达时锁把它们串行化，第二个请求拿到锁时实例
	// 已经搬走了，这里干净地拒绝
	if inst.Host != m.cfg.Host {
		return apierror.WrapError(apierror.ErrIncorrectInstanceState,
			"cannot migrate an instance that is on another host", nil)
	}

	md, err := m.inv.MetadataGet(ctx, instanceID)
	if err != nil {
		return err
	}

	// 有外部卷时先让卷服务确认导出就绪
	if md[entity.TagVolumes] != "" {
		args := checkForExportArgs{InstanceID: instanceID}
		if err := m.bus.Call(ctx, bus.QueueFor(bus.TopicVolume, m.cfg.Host), "check_for_export", args, nil); err != nil {
			return err
		}
	}

	migrationAddress, err := m.migrationAddress(dest)
	if err != nil {
		return err
	}

	networkInfo, err := m.network.GetInstanceNetworkInfo(ctx, inst)
	if err != nil {
		return err
	}

	md[entity.TagSrcHost] = m.cfg.Host
	md[entity.TagDstHost] = dest
	if err := m.inv.MetadataUpdate(ctx, instanceID, md); err != nil {
		return err
	}

	// 目标端先把实例的宿主机侧网络准备好
	if err := m.bus.Call(ctx, bus.QueueFor(bus.TopicCompute, dest), "pre_live_migration",
		preLiveMigrationArgs{InstanceID: instanceID}, nil); err != nil {
		return err
	}

	// 迁移模式的 bless：成功后源虚拟机停止运行，内存通过返回的端点
	// 对外提供。失败时 bless 自己不改实例状态，这里直接上抛，实例
	// 还完好地跑在本机
	migrationURL, err := m.blessInstance(ctx, instanceID, fmt.Sprintf("tcp://%s", migrationAddress), networkInfo)
	if err != nil {
		return err
	}

	if err := m.drv.PreMigration(ctx, inst, networkInfo, migrationURL); err != nil {
		logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during pre migration")
	}

	// 远端 launch 可能要传输整台虚拟机的内存，总线调用用的是宽松
	// 超时。失败就地回退：用同一套产物在本机重新 launch，实例回到
	// 原宿主机而不是丢失
	changedHosts := true
	if err := m.bus.Call(ctx, bus.QueueFor(bus.TopicVCP, dest), "launch_instance", LaunchCallArgs{
		InstanceID:   instanceID,
		MigrationURL: migrationURL,
		NetworkInfo:  networkInfo,
	}, nil); err != nil {
		logger.Error().Err(err).Str("instance_id", instanceID).Str("dest", dest).
			Msg("Error during remote launch")
		if lerr := m.launchInstance(ctx, instanceID, "", nil, migrationURL, networkInfo); lerr != nil {
			logger.Error().Err(lerr).Str("instance_id", instanceID).Msg("Error during local fallback launch")
		}
		changedHosts = false
	}

	// 收尾清理本机的迁移状态。失败可能留下一点被内存服务占用的资源，
	// 不理想，但新虚拟机已经正常，迁出本机多半也是为了下线检修
	if err := m.drv.PostMigration(ctx, inst, networkInfo, migrationURL); err != nil {
		logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during post migration")
	}

	if changedHosts {
		// 实例已经在远端运行，把它在本机的计算侧痕迹清掉
		if err := m.bus.Call(ctx, bus.QueueFor(bus.TopicCompute, m.cfg.Host), "rollback_live_migration",
			rollbackLiveMigrationArgs{InstanceID: instanceID}, nil); err != nil {
			logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during post migration cleanup")
		}
		// 确保 DHCP 等宿主机侧网络在目标端就位、源端的残留被清掉
		if err := m.migrationReconfigureNetworks(ctx, inst, dest); err != nil {
			logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during post migration network configuration")
		}
	}

	// 丢弃迁移专用的产物。失败最多留下一些镜像数据，虚拟机本身是
	// 好的，这之后再改状态已经没有意义
	md, err = m.inv.MetadataGet(ctx, instanceID)
	if err != nil {
		logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error reading migration artifacts")
		return nil
	}
	if err := m.drv.Discard(ctx, inst.Name, extractImageRefs(md)); err != nil {
		logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during migration artifact discard")
	}
	return nil
}
