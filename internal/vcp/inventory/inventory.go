// Package inventory 是持久化存储之上的库存网关
// 所有协议通过它读写实例记录和标签元数据，字段更新带有限次重试
package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/internal/vcp/repository"
	"github.com/jimyag/vcp/internal/vcp/repository/model"
	"github.com/jimyag/vcp/pkg/apierror"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	// 字段更新是幂等的，瞬时的存储故障（例如数据库重启）通过固定间隔
	// 重试来吸收，总窗口约一分钟，之后错误上抛给调用方
	defaultRetryInterval = 5 * time.Second
	defaultMaxRetries    = 12
)

// Fields 按列更新实例记录
type Fields map[string]interface{}

// Gateway 库存网关
type Gateway struct {
	instances repository.InstanceRepository
	tags      repository.TagRepository

	retryInterval time.Duration
	maxRetries    int
}

// New 创建库存网关
func New(repo *repository.Repository) *Gateway {
	return &Gateway{
		instances:     repository.NewInstanceRepository(repo.DB()),
		tags:          repository.NewTagRepository(repo.DB()),
		retryInterval: defaultRetryInterval,
		maxRetries:    defaultMaxRetries,
	}
}

// NewWithRetry 创建库存网关并指定重试参数，测试用
func NewWithRetry(repo *repository.Repository, interval time.Duration, maxRetries int) *Gateway {
	g := New(repo)
	g.retryInterval = interval
	g.maxRetries = maxRetries
	return g
}

// Get 根据 ID 获取实例
func (g *Gateway) Get(ctx context.Context, id string) (*entity.Instance, error) {
	m, err := g.instances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.WrapError(apierror.ErrInstanceNotFound, "instance "+id+" not found", err)
		}
		return nil, apierror.WrapError(apierror.ErrInternalError, "get instance", err)
	}
	return modelToEntity(m)
}

// GetAllByHost 获取指定宿主机上的所有实例
func (g *Gateway) GetAllByHost(ctx context.Context, host string) ([]*entity.Instance, error) {
	models, err := g.instances.ListByHost(ctx, host)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "list instances by host", err)
	}
	instances := make([]*entity.Instance, 0, len(models))
	for _, m := range models {
		e, err := modelToEntity(m)
		if err != nil {
			return nil, err
		}
		instances = append(instances, e)
	}
	return instances, nil
}

// GetAllByTag 获取带有指定标签键值对的所有实例
// 标签和实例记录的删除不在一个事务里，反查到的 ID 可能已经没有
// 对应记录，跳过即可
func (g *Gateway) GetAllByTag(ctx context.Context, key, value string) ([]*entity.Instance, error) {
	ids, err := g.tags.ListInstanceIDsByTag(ctx, key, value)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "list instances by tag", err)
	}
	instances := make([]*entity.Instance, 0, len(ids))
	for _, id := range ids {
		m, err := g.instances.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, apierror.WrapError(apierror.ErrInternalError, "get instance", err)
		}
		e, err := modelToEntity(m)
		if err != nil {
			return nil, err
		}
		instances = append(instances, e)
	}
	return instances, nil
}

// Create 创建实例记录
func (g *Gateway) Create(ctx context.Context, inst *entity.Instance) error {
	m := &model.Instance{}
	if err := copier.Copy(m, inst); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "convert instance", err)
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := g.instances.Create(ctx, m); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "create instance", err)
	}
	return nil
}

// Update 按字段更新实例记录
// 更新是幂等的，瞬时失败按固定间隔重试，超过重试窗口后上抛
func (g *Gateway) Update(ctx context.Context, id string, fields Fields) error {
	logger := zerolog.Ctx(ctx)

	var err error
	for attempt := 0; ; attempt++ {
		err = g.instances.UpdateFields(ctx, id, fields)
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 记录不存在不是瞬时故障，立即上抛
			return apierror.WrapError(apierror.ErrInstanceNotFound, "instance "+id+" not found", err)
		}
		if attempt >= g.maxRetries {
			break
		}
		logger.Warn().
			Err(err).
			Str("instance_id", id).
			Int("attempt", attempt+1).
			Msg("Instance update failed, retrying")
		select {
		case <-time.After(g.retryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return apierror.WrapError(apierror.ErrInternalError, "update instance", err)
}

// MetadataGet 读取实例的标签元数据
func (g *Gateway) MetadataGet(ctx context.Context, id string) (map[string]string, error) {
	tags, err := g.tags.GetByInstance(ctx, id)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "get instance metadata", err)
	}
	md := make(map[string]string, len(tags))
	for _, tag := range tags {
		md[tag.TagKey] = tag.TagValue
	}
	return md, nil
}

// MetadataUpdate 整体替换实例的标签元数据
// 写入按 key 排序，保证往返结果稳定
func (g *Gateway) MetadataUpdate(ctx context.Context, id string, md map[string]string) error {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now()
	tags := make([]*model.Tag, 0, len(md))
	for _, k := range keys {
		tags = append(tags, &model.Tag{
			InstanceID: id,
			TagKey:     k,
			TagValue:   md[k],
			CreatedAt:  now,
		})
	}
	if err := g.tags.ReplaceAll(ctx, id, tags); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "update instance metadata", err)
	}
	return nil
}

// Destroy 彻底删除实例记录及其标签
func (g *Gateway) Destroy(ctx context.Context, id string) error {
	if err := g.instances.Delete(ctx, id); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "destroy instance", err)
	}
	if err := g.tags.DeleteByInstance(ctx, id); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "destroy instance tags", err)
	}
	return nil
}

func modelToEntity(m *model.Instance) (*entity.Instance, error) {
	e := &entity.Instance{}
	if err := copier.Copy(e, m); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "convert instance", err)
	}
	return e, nil
}
