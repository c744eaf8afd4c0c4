package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// Generator 递增 ID 生成器
// 使用 Sonyflake 算法生成全局唯一且递增的 ID
type Generator struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultGenerator     *Generator
	defaultGeneratorOnce sync.Once
)

// DefaultGenerator 返回默认的 ID 生成器
func DefaultGenerator() *Generator {
	defaultGeneratorOnce.Do(func() {
		defaultGenerator = New()
	})
	return defaultGenerator
}

// New 创建新的 ID 生成器
func New() *Generator {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), // 起始时间
	})
	if sf == nil {
		panic("idgen: failed to create sonyflake generator")
	}
	return &Generator{sf: sf}
}

// GenerateID 生成一个新的 ID
func (g *Generator) GenerateID() (uint64, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return 0, fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// GenerateInstanceID 生成 i-{id} 形式的实例 ID
func (g *Generator) GenerateInstanceID() (string, error) {
	id, err := g.GenerateID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("i-%d", id), nil
}
