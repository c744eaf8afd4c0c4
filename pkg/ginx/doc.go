// Package ginx 提供 gin handler 的泛型适配器
//
// 业务 handler 只需要写成 func(ctx, *Req) (*Resp, error) 的形式，
// 参数绑定、校验和响应/错误渲染由适配器统一完成：
//
//	router.POST("/bless", ginx.Adapt5(h.BlessInstance))
//
// 错误渲染识别 apierror.Error，使用其中定义的 HTTP 状态码。
package ginx
