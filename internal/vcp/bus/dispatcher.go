package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler 处理一个队列方法
// 返回值会被 JSON 编码后作为响应体
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Dispatcher 队列方法分发器，服务端挂在 /rpc/{topic} 上
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler // topic -> method -> handler
}

// NewDispatcher 创建分发器
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]map[string]Handler),
	}
}

// Register 注册一个队列方法
func (d *Dispatcher) Register(topic, method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers[topic] == nil {
		d.handlers[topic] = make(map[string]Handler)
	}
	d.handlers[topic][method] = h
}

// lookup 查找方法处理函数
func (d *Dispatcher) lookup(topic, method string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[topic][method]
	return h, ok
}

// GinHandler 返回挂到 POST /rpc/:topic 的 gin handler
func (d *Dispatcher) GinHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		topic := ctx.Param("topic")

		var req callRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, callError{Error: err.Error()})
			return
		}

		h, ok := d.lookup(topic, req.Method)
		if !ok {
			ctx.JSON(http.StatusNotFound, callError{
				Error: fmt.Sprintf("no handler for %s.%s", topic, req.Method),
			})
			return
		}

		zerolog.Ctx(ctx.Request.Context()).Debug().
			Str("topic", topic).
			Str("method", req.Method).
			Msg("Bus dispatch")

		result, err := h(ctx.Request.Context(), req.Args)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, callError{Error: err.Error()})
			return
		}
		if result == nil {
			ctx.JSON(http.StatusOK, gin.H{})
			return
		}
		ctx.JSON(http.StatusOK, result)
	}
}
