package repository

import (
	"context"

	"github.com/jimyag/vcp/internal/vcp/repository/model"
	"gorm.io/gorm"
)

// TagRepository 标签仓库接口
// 标签作为整体读写：ReplaceAll 在一个事务里删除旧值并写入新值
type TagRepository interface {
	GetByInstance(ctx context.Context, instanceID string) ([]*model.Tag, error)
	ListInstanceIDsByTag(ctx context.Context, key, value string) ([]string, error)
	ReplaceAll(ctx context.Context, instanceID string, tags []*model.Tag) error
	DeleteByInstance(ctx context.Context, instanceID string) error
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository 创建标签仓库
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

// GetByInstance 获取实例的所有标签
func (r *tagRepository) GetByInstance(ctx context.Context, instanceID string) ([]*model.Tag, error) {
	var tags []*model.Tag
	if err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("id").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// ListInstanceIDsByTag 反查带有指定标签键值对的实例 ID
func (r *tagRepository) ListInstanceIDsByTag(ctx context.Context, key, value string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&model.Tag{}).
		Where("tag_key = ? AND tag_value = ?", key, value).
		Order("instance_id").
		Pluck("instance_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ReplaceAll 整体替换实例的标签
func (r *tagRepository) ReplaceAll(ctx context.Context, instanceID string, tags []*model.Tag) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("instance_id = ?", instanceID).Delete(&model.Tag{}).Error; err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		return tx.Create(tags).Error
	})
}

// DeleteByInstance 删除实例的所有标签
func (r *tagRepository) DeleteByInstance(ctx context.Context, instanceID string) error {
	return r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Delete(&model.Tag{}).Error
}
