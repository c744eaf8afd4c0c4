package manager

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/entity"
)

// Notifier 生命周期事件的外发通道
// bless / launch / discard 成功后各发一条事件
type Notifier interface {
	Notify(ctx context.Context, inst *entity.Instance, operation string) error
}

// LogNotifier 把生命周期事件写进结构化日志
// 没有外部事件系统时的默认实现
type LogNotifier struct {
	host string
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(host string) *LogNotifier {
	return &LogNotifier{host: host}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(ctx context.Context, inst *entity.Instance, operation string) error {
	zerolog.Ctx(ctx).Info().
		Str("event", "vcp.instance."+operation).
		Str("publisher", "vcp."+n.host).
		Str("instance_id", inst.ID).
		Str("vm_state", inst.VMState).
		Str("host", inst.Host).
		Msg("Instance lifecycle event")
	return nil
}

// notify 发送生命周期事件
// 发送失败只记日志。实例此时仍在正常运行，为一条丢失的事件把它标成
// ERROR 并不合理，消费方最终会通过扫描实例补上
func (m *Manager) notify(ctx context.Context, inst *entity.Instance, operation string) {
	if err := m.notifier.Notify(ctx, inst, operation); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("instance_id", inst.ID).
			Str("operation", operation).
			Msg("Error during notify")
	}
}
