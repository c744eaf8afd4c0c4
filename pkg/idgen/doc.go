// Package idgen 提供全局唯一且递增的 ID 生成器
//
// 基于 Sonyflake 算法，生成的 ID 按时间递增，适合作为实例 ID 的数字部分：
//
//	id, err := idgen.New().GenerateID()
//	instanceID := fmt.Sprintf("i-%d", id)
package idgen
