package manager

import (
	"context"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/internal/vcp/inventory"
	"github.com/jimyag/vcp/pkg/apierror"
)

// Discard 释放一个 blessed 模板
// 驱动删除成功之前不碰记录，所以驱动失败时实例原样保留，直接重试
// 即可。成功后记录整行删除，不保留终态
func (m *Manager) Discard(ctx context.Context, instanceID string) error {
	return m.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		return m.doDiscard(ctx, instanceID)
	})
}

func (m *Manager) doDiscard(ctx context.Context, instanceID string) error {
	inst, err := m.inv.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.VMState != entity.VMStateBlessed {
		return apierror.WrapError(apierror.ErrIncorrectInstanceState,
			"instance "+instanceID+" is not blessed", nil)
	}

	md, err := m.inv.MetadataGet(ctx, instanceID)
	if err != nil {
		return err
	}
	imageRefs := extractImageRefs(md)

	if err := m.drv.Discard(ctx, inst.Name, imageRefs); err != nil {
		return err
	}

	md[entity.TagBlessed] = "false"
	if err := m.inv.MetadataUpdate(ctx, instanceID, md); err != nil {
		return err
	}

	if err := m.inv.Update(ctx, instanceID, inventory.Fields{
		"vm_state":      entity.VMStateDeleted,
		"task_state":    "",
		"terminated_at": utcnow(),
	}); err != nil {
		return err
	}
	if err := m.inv.Destroy(ctx, instanceID); err != nil {
		return err
	}

	m.notify(ctx, inst, "discard")
	return nil
}
