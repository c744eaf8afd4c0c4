package manager

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/bus"
	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/internal/vcp/inventory"
	"github.com/jimyag/vcp/pkg/apierror"
)

// Launch 从 blessed 模板启动一个新实例
// target 是可选的内存页预算字符串，params 透传给驱动
func (m *Manager) Launch(ctx context.Context, blessedID, target string, params map[string]string) (*entity.Instance, error) {
	blessed, err := m.inv.Get(ctx, blessedID)
	if err != nil {
		return nil, err
	}
	if blessed.VMState != entity.VMStateBlessed {
		return nil, apierror.WrapError(apierror.ErrIncorrectInstanceState,
			"instance "+blessedID+" is not blessed", nil)
	}

	inst, err := m.newDerivedInstance(ctx, blessed, entity.TagLaunchedFrom, false)
	if err != nil {
		return nil, err
	}

	if err := m.launchInstance(ctx, inst.ID, target, params, "", nil); err != nil {
		return nil, err
	}
	return m.inv.Get(ctx, inst.ID)
}

// LaunchMigration 迁移的目标端入口，由源宿主机通过消息总线调用
func (m *Manager) LaunchMigration(ctx context.Context, instanceID, migrationURL string, netInfo *entity.NetworkInfo) error {
	return m.launchInstance(ctx, instanceID, "", nil, migrationURL, netInfo)
}

// launchInstance 对单条记录执行 launch 协议
// migrationURL 非空表示在完成一次迁移：网络配置沿用调用方传入的，
// 状态走 MIGRATING 而不是 BUILDING，失败时不碰状态，回滚由发起迁移
// 的协议负责
func (m *Manager) launchInstance(ctx context.Context, instanceID, target string, params map[string]string, migrationURL string, migrationNetworkInfo *entity.NetworkInfo) error {
	return m.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		return m.doLaunch(ctx, instanceID, target, params, migrationURL, migrationNetworkInfo)
	})
}

func (m *Manager) doLaunch(ctx context.Context, instanceID, target string, params map[string]string, migrationURL string, migrationNetworkInfo *entity.NetworkInfo) error {
	logger := zerolog.Ctx(ctx)
	migration := migrationURL != ""

	inst, err := m.inv.Get(ctx, instanceID)
	if err != nil {
		return err
	}

	var source *entity.Instance
	if migration {
		// 迁移时实例自己就是启动源，产物还在原地
		source = inst
	} else {
		source, err = m.getSourceInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if source == nil {
			return apierror.WrapError(apierror.ErrIncorrectInstanceState,
				"instance "+instanceID+" has no source to launch from", nil)
		}
	}

	// 预算解析失败不是致命错误，按不限制处理
	var targetPages uint64
	if target != "" && target != "0" {
		pages, err := memoryStringToPages(target)
		if err != nil {
			logger.Warn().Err(err).Str("target", target).Msg("Defaulting to no target")
		} else {
			targetPages = pages
		}
	}

	md, err := m.inv.MetadataGet(ctx, source.ID)
	if err != nil {
		return err
	}
	imageRefs := extractImageRefs(md)

	var netInfo *entity.NetworkInfo
	if migration {
		netInfo = migrationNetworkInfo
		if err := m.inv.Update(ctx, instanceID, inventory.Fields{
			"vm_state":   entity.VMStateMigrating,
			"task_state": entity.TaskStateSpawning,
		}); err != nil {
			return err
		}
	} else {
		if err := m.inv.Update(ctx, instanceID, inventory.Fields{
			"vm_state":   entity.VMStateBuilding,
			"task_state": entity.TaskStateNetworking,
			"host":       m.cfg.Host,
		}); err != nil {
			return err
		}
		inst.Host = m.cfg.Host

		netInfo, err = m.network.AllocateForInstance(ctx, inst)
		if err != nil {
			logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during network allocation")
			if uerr := m.inv.Update(ctx, instanceID, inventory.Fields{
				"vm_state":   entity.VMStateError,
				"task_state": "",
			}); uerr != nil {
				logger.Error().Err(uerr).Str("instance_id", instanceID).Msg("Error during launch state update")
			}
			return err
		}
		logger.Debug().Str("instance_id", instanceID).Interface("network_info", netInfo).
			Msg("Network allocated for launch")

		if err := m.inv.Update(ctx, instanceID, inventory.Fields{
			"vm_state":   entity.VMStateBuilding,
			"task_state": entity.TaskStateSpawning,
		}); err != nil {
			return err
		}
	}

	launchErr := func() error {
		// 让本机计算子系统先把实例的宿主机侧网络配好，之后 iptables
		// 之类的变更都由它接手。迁移场景这一步已经在发起端做过
		if !migration {
			args := preLiveMigrationArgs{InstanceID: instanceID}
			if err := m.bus.Call(ctx, bus.QueueFor(bus.TopicCompute, m.cfg.Host), "pre_live_migration", args, nil); err != nil {
				return err
			}
		}
		return m.drv.Launch(ctx, source.Name, inst, netInfo, targetPages, migrationURL, imageRefs, params)
	}()
	if launchErr != nil {
		logger.Error().Err(launchErr).Str("instance_id", instanceID).Msg("Error during launch")
		if !migration {
			if uerr := m.inv.Update(ctx, instanceID, inventory.Fields{
				"vm_state":   entity.VMStateError,
				"task_state": "",
			}); uerr != nil {
				logger.Error().Err(uerr).Str("instance_id", instanceID).Msg("Error during launch state update")
			}
		}
		return launchErr
	}
	if !migration {
		m.notify(ctx, inst, "launch")
	}

	// 最后的登记失败不上抛。虚拟机已经在跑了，记录停在 BUILDING 或
	// MIGRATING，对账循环稍后会把状态修正过来，这时销毁虚拟机才是
	// 真正的错误
	if err := m.inv.Update(ctx, instanceID, inventory.Fields{
		"vm_state":    entity.VMStateActive,
		"host":        m.cfg.Host,
		"node":        m.cfg.Node,
		"launched_at": utcnow(),
		"task_state":  "",
	}); err != nil {
		logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during post launch update")
	}
	return nil
}
