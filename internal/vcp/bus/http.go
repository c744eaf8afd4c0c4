package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// 迁移时的远端 launch 要等整台虚拟机的内存传输完成，
// 可能长达数十分钟，所以总线调用使用一个很宽松的超时
const defaultCallTimeout = 30 * time.Minute

// HTTPBus 通过 HTTP 承载的消息总线实现
// 每台宿主机在 /rpc/{topic} 上挂一个 Dispatcher，peers 表把
// 宿主机名映射到它的基地址
type HTTPBus struct {
	peers  map[string]string
	client *http.Client
}

// NewHTTPBus 创建 HTTP 总线客户端
func NewHTTPBus(peers map[string]string) *HTTPBus {
	return &HTTPBus{
		peers:  peers,
		client: &http.Client{Timeout: defaultCallTimeout},
	}
}

var _ Bus = (*HTTPBus)(nil)

// Call 向目标宿主机的指定队列发起同步调用
func (b *HTTPBus) Call(ctx context.Context, queue, method string, args any, reply any) error {
	topic, host, err := splitQueue(queue)
	if err != nil {
		return err
	}

	baseURL, ok := b.peers[host]
	if !ok {
		return fmt.Errorf("unknown host %q in queue %q", host, queue)
	}

	rawArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	body, err := json.Marshal(callRequest{Method: method, Args: rawArgs})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("queue", queue).
		Str("method", method).
		Msg("Bus call")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/rpc/"+topic, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", queue, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var ce callError
		if err := json.Unmarshal(respBody, &ce); err == nil && ce.Error != "" {
			return fmt.Errorf("call %s %s: %s", queue, method, ce.Error)
		}
		return fmt.Errorf("call %s %s: unexpected status %d", queue, method, resp.StatusCode)
	}

	if reply != nil {
		if err := json.Unmarshal(respBody, reply); err != nil {
			return fmt.Errorf("unmarshal reply: %w", err)
		}
	}
	return nil
}
