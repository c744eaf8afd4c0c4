package ginx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimyag/vcp/pkg/apierror"
)

// renderResponse 渲染响应
func renderResponse(ctx *gin.Context, response any) {
	if response == nil {
		ctx.Status(http.StatusNoContent)
		return
	}

	switch v := response.(type) {
	case string:
		ctx.String(http.StatusOK, v)
	default:
		ctx.JSON(http.StatusOK, v)
	}
}

// renderError 渲染错误响应
// 如果 err 是 *apierror.Error，使用其中定义的 HTTP 状态码并序列化为 ErrorResponse
func renderError(ctx *gin.Context, statusCode int, err error) {
	if apiErr, ok := err.(*apierror.Error); ok {
		if apiErr.HTTPStatus > 0 {
			statusCode = apiErr.HTTPStatus
		}
		requestID := ctx.GetString("request_id")
		ctx.JSON(statusCode, apierror.NewErrorResponse(requestID, apiErr))
		return
	}

	if errorResp, ok := err.(*apierror.ErrorResponse); ok {
		if len(errorResp.Errors) > 0 && errorResp.Errors[0].HTTPStatus > 0 {
			statusCode = errorResp.Errors[0].HTTPStatus
		}
		ctx.JSON(statusCode, errorResp)
		return
	}

	ctx.JSON(statusCode, gin.H{"error": err.Error()})
}
