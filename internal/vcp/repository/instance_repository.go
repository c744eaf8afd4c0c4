package repository

import (
	"context"

	"github.com/jimyag/vcp/internal/vcp/repository/model"
	"gorm.io/gorm"
)

// InstanceRepository 实例仓库接口
type InstanceRepository interface {
	Create(ctx context.Context, instance *model.Instance) error
	GetByID(ctx context.Context, id string) (*model.Instance, error)
	ListByHost(ctx context.Context, host string) ([]*model.Instance, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type instanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository 创建实例仓库
func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

// Create 创建实例
func (r *instanceRepository) Create(ctx context.Context, instance *model.Instance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

// GetByID 根据 ID 获取实例
func (r *instanceRepository) GetByID(ctx context.Context, id string) (*model.Instance, error) {
	var instance model.Instance
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

// ListByHost 列出指定宿主机上的所有实例
func (r *instanceRepository) ListByHost(ctx context.Context, host string) ([]*model.Instance, error) {
	var instances []*model.Instance
	if err := r.db.WithContext(ctx).
		Where("host = ?", host).
		Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

// UpdateFields 按字段更新实例
// 更新是幂等的，调用方可以安全重试
func (r *instanceRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&model.Instance{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete 删除实例记录（硬删除）
func (r *instanceRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.Instance{}, "id = ?", id).Error
}
