// Package apierror 提供 AWS 风格的错误类型，用于所有服务的统一错误处理
//
// 错误通过 Code 区分类型，支持 errors.Is / errors.As / errors.Unwrap：
//
//	if errors.Is(err, apierror.ErrInstanceNotFound) {
//	    // 实例不存在
//	}
//
// 预定义错误见 codes.go，使用 WrapError 在保留 Code 和 HTTP 状态码的
// 前提下附加上下文信息和原始错误。
package apierror
