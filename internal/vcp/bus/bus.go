// Package bus 是宿主机间消息总线的访问边界
// 每台宿主机对外暴露若干命名队列（topic.host），调用方通过 Call
// 发起同步的请求/响应。失败以 error 形式返回给调用方，由上层的
// 协议决定补偿动作
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// 本系统使用的队列 topic
const (
	TopicVCP     = "vcp"     // 克隆编排队列（launch_instance）
	TopicCompute = "compute" // 宿主机计算队列（pre_live_migration / rollback_live_migration）
	TopicNetwork = "network" // 宿主机网络队列（setup_network）
	TopicVolume  = "volume"  // 卷服务队列（check_for_export）
)

// Bus 消息总线接口
// args 和 reply 使用 JSON 编码，reply 为 nil 时忽略响应内容
type Bus interface {
	Call(ctx context.Context, queue, method string, args any, reply any) error
}

// QueueFor 返回某台宿主机上指定 topic 的队列名
func QueueFor(topic, host string) string {
	return topic + "." + host
}

// splitQueue 拆出队列名中的 topic 和宿主机
func splitQueue(queue string) (topic, host string, err error) {
	topic, host, ok := strings.Cut(queue, ".")
	if !ok || topic == "" || host == "" {
		return "", "", fmt.Errorf("invalid queue name %q", queue)
	}
	return topic, host, nil
}

// callRequest 总线上传输的请求体
type callRequest struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

// callError 总线上传输的错误响应体
type callError struct {
	Error string `json:"error"`
}
