// Package api 暴露克隆编排的 HTTP 入口
// /api 下是面向用户的操作，/rpc 下是宿主机之间的总线调用
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/bus"
)

type API struct {
	engine *gin.Engine
	server *http.Server

	instance *Instance
}

// New 创建 API 服务
// dispatcher 为 nil 时不挂载 /rpc 路由
func New(address string, orchestrator Orchestrator, dispatcher *bus.Dispatcher) (*API, error) {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())

	api := &API{
		engine:   engine,
		instance: NewInstance(orchestrator),
	}
	api.instance.RegisterRoutes(engine.Group("/api"))
	if dispatcher != nil {
		engine.POST("/rpc/:topic", dispatcher.GinHandler())
	}

	api.server = &http.Server{
		Addr:    address,
		Handler: engine,
	}
	return api, nil
}

// requestID 给每个请求分配 ID，错误响应里带回给调用方
func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Header("X-Request-ID", id)

		logger := zerolog.Ctx(ctx.Request.Context()).With().Str("request_id", id).Logger()
		ctx.Request = ctx.Request.WithContext(logger.WithContext(ctx.Request.Context()))
		ctx.Next()
	}
}

func (a *API) Run(ctx context.Context) error {
	return a.server.ListenAndServe()
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Name 实现 grace.Grace 接口
func (a *API) Name() string {
	return "VCP API"
}
