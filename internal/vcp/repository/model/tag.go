package model

import (
	"time"
)

// Tag 标签表，承载实例的派生元数据（镜像引用、迁移宿主机记录等）
// 整体替换式更新，不做软删除
type Tag struct {
	ID         uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	InstanceID string    `gorm:"type:text;not null;index:idx_tags_instance_id;column:instance_id" json:"instanceID"`
	TagKey     string    `gorm:"type:text;not null;column:tag_key" json:"tagKey"`     // 不在 tag_key 上建索引（tag 太长）
	TagValue   string    `gorm:"type:text;not null;column:tag_value" json:"tagValue"` // 不在 tag_value 上建索引（tag 太长）
	CreatedAt  time.Time `gorm:"type:datetime;not null;column:created_at" json:"created_at"`
}

// TableName 指定表名
func (Tag) TableName() string {
	return "tags"
}
