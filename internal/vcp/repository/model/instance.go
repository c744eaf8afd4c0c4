package model

import (
	"time"
)

// Instance 实例表
// vm_state 为 deleted 的记录不保留，discard 成功后整行删除
type Instance struct {
	ID               string     `gorm:"primaryKey;type:text;column:id" json:"id"`   // i-{id}
	Name             string     `gorm:"type:text;not null;column:name" json:"name"` // hypervisor 域名称
	VMState          string     `gorm:"type:text;not null;index:idx_instances_vm_state;column:vm_state" json:"vm_state"`
	TaskState        string     `gorm:"type:text;column:task_state" json:"task_state"`
	Host             string     `gorm:"type:text;index:idx_instances_host;column:host" json:"host"`
	Node             string     `gorm:"type:text;column:node" json:"node"`
	LaunchedAt       *time.Time `gorm:"type:datetime;column:launched_at" json:"launched_at,omitempty"`
	TerminatedAt     *time.Time `gorm:"type:datetime;column:terminated_at" json:"terminated_at,omitempty"`
	DisableTerminate bool       `gorm:"type:integer;not null;default:0;column:disable_terminate" json:"disable_terminate"`
	CreatedAt        time.Time  `gorm:"type:datetime;not null;column:created_at" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Instance) TableName() string {
	return "instances"
}
