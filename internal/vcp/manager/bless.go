package manager

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/internal/vcp/inventory"
	"github.com/jimyag/vcp/pkg/apierror"
)

// Bless 把一个运行中的实例冻结为可复用的模板
// 先创建一条派生记录作为模板的占位，再对它执行 bless 协议。
// 占位记录天生带 disable_terminate，避免普通删除路径碰到它
func (m *Manager) Bless(ctx context.Context, sourceID string) (*entity.Instance, error) {
	source, err := m.inv.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source.VMState != entity.VMStateActive {
		return nil, apierror.WrapError(apierror.ErrIncorrectInstanceState,
			"instance "+sourceID+" is not active", nil)
	}

	inst, err := m.newDerivedInstance(ctx, source, entity.TagBlessedFrom, true)
	if err != nil {
		return nil, err
	}

	if _, err := m.blessInstance(ctx, inst.ID, "", nil); err != nil {
		return nil, err
	}
	return m.inv.Get(ctx, inst.ID)
}

// blessInstance 对单条记录执行 bless 协议
// migrationURL 非空表示这是迁移内部的 bless：产物只服务于一次迁移，
// 不改实例状态，失败时尽力把虚拟机在本机重新拉起来。返回内存传输
// 端点，普通 bless 返回空串
func (m *Manager) blessInstance(ctx context.Context, instanceID, migrationURL string, migrationNetworkInfo *entity.NetworkInfo) (string, error) {
	var url string
	err := m.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		var err error
		url, err = m.doBless(ctx, instanceID, migrationURL, migrationNetworkInfo)
		return err
	})
	return url, err
}

func (m *Manager) doBless(ctx context.Context, instanceID, migrationURL string, migrationNetworkInfo *entity.NetworkInfo) (string, error) {
	logger := zerolog.Ctx(ctx)
	migration := migrationURL != ""

	inst, err := m.inv.Get(ctx, instanceID)
	if err != nil {
		return "", err
	}

	var source *entity.Instance
	if migration {
		// 迁移时冻结的就是实例本身
		source = inst
	} else {
		source, err = m.getSourceInstance(ctx, instanceID)
		if err != nil {
			return "", err
		}
		if source == nil {
			return "", apierror.WrapError(apierror.ErrIncorrectInstanceState,
				"instance "+instanceID+" has no source to bless", nil)
		}
	}

	// 迁移场景下 bless 成功意味着源虚拟机已经不在运行，后面回滚时
	// 必须用产物把它重新启动
	name, url, blessedFiles, err := m.drv.Bless(ctx, source.Name, inst, migrationURL)
	if err != nil {
		logger.Error().Err(err).Str("instance_id", instanceID).Msg("Error during bless")
		if !migration {
			if uerr := m.inv.Update(ctx, instanceID, inventory.Fields{
				"vm_state":   entity.VMStateError,
				"task_state": "",
			}); uerr != nil {
				logger.Error().Err(uerr).Str("instance_id", instanceID).Msg("Error during bless state update")
			}
		}
		return "", err
	}
	logger.Debug().Str("name", name).Strs("blessed_files", blessedFiles).Msg("Bless produced artifacts")

	// imageRefs 在 post-bless 失败时保持部分结果，补偿清理要用
	imageRefs := []string{}
	blessErr := func() error {
		refs, err := m.drv.PostBless(ctx, inst, blessedFiles)
		if err != nil {
			return err
		}
		imageRefs = refs

		md, err := m.inv.MetadataGet(ctx, instanceID)
		if err != nil {
			return err
		}
		md[entity.TagImages] = strings.Join(imageRefs, ",")
		if !migration {
			md[entity.TagBlessed] = "true"
		}
		if err := m.inv.MetadataUpdate(ctx, instanceID, md); err != nil {
			return err
		}

		if !migration {
			m.notify(ctx, inst, "bless")
			if err := m.inv.Update(ctx, instanceID, inventory.Fields{
				"vm_state":          entity.VMStateBlessed,
				"task_state":        "",
				"launched_at":       utcnow(),
				"disable_terminate": true,
			}); err != nil {
				return err
			}
		}
		return nil
	}()

	if blessErr != nil {
		logger.Error().Err(blessErr).Str("instance_id", instanceID).Msg("Error during post bless")
		if migration {
			// 源虚拟机已被 bless 停掉，用本地产物原地重启，
			// 失败也只能记日志，剩下的交给对账循环
			if lerr := m.drv.Launch(ctx, source.Name, inst, migrationNetworkInfo, 0, url, blessedFiles, nil); lerr != nil {
				logger.Error().Err(lerr).Str("instance_id", instanceID).Msg("Error during bless rollback launch")
			}
		}
		// 元数据没有记录下引用位置，产物必须清掉，否则就泄漏了
		if derr := m.drv.Discard(ctx, inst.Name, imageRefs); derr != nil {
			logger.Error().Err(derr).Str("instance_id", instanceID).Msg("Error during bless rollback discard")
		}
		if !migration {
			if uerr := m.inv.Update(ctx, instanceID, inventory.Fields{
				"vm_state":   entity.VMStateError,
				"task_state": "",
			}); uerr != nil {
				logger.Error().Err(uerr).Str("instance_id", instanceID).Msg("Error during bless state update")
			}
		}
	}

	// 本地产物清理独立于成败，失败只记日志，不触发新的回滚
	if cerr := m.drv.BlessCleanup(ctx, blessedFiles); cerr != nil {
		logger.Error().Err(cerr).Str("instance_id", instanceID).Msg("Error during bless cleanup")
	}

	if blessErr != nil {
		return "", blessErr
	}
	return url, nil
}
