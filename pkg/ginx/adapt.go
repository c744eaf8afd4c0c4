package ginx

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

// Adapt4 适配有参数、只有 error 的 handler
func Adapt4[T any](fn func(*gin.Context, *T) error) gin.HandlerFunc {
	var argsType T
	argsTypeValue := reflect.TypeOf(argsType)

	return func(ctx *gin.Context) {
		argsValue := reflect.New(argsTypeValue)
		args := argsValue.Interface()

		if err := bindArgs(ctx, args); err != nil {
			renderError(ctx, http.StatusBadRequest, err)
			return
		}

		// 验证参数（如果实现了 IsValid 方法）
		if validator, ok := args.(interface{ IsValid() error }); ok {
			if err := validator.IsValid(); err != nil {
				renderError(ctx, http.StatusBadRequest, err)
				return
			}
		}

		if err := fn(ctx, args.(*T)); err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}

		ctx.Status(http.StatusNoContent)
	}
}

// Adapt5 适配有参数、有返回值和 error 的 handler
func Adapt5[TArgs any, TResp any](fn func(*gin.Context, *TArgs) (TResp, error)) gin.HandlerFunc {
	var argsType TArgs
	argsTypeValue := reflect.TypeOf(argsType)

	return func(ctx *gin.Context) {
		argsValue := reflect.New(argsTypeValue)
		args := argsValue.Interface()

		if err := bindArgs(ctx, args); err != nil {
			renderError(ctx, http.StatusBadRequest, err)
			return
		}

		// 验证参数（如果实现了 IsValid 方法）
		if validator, ok := args.(interface{ IsValid() error }); ok {
			if err := validator.IsValid(); err != nil {
				renderError(ctx, http.StatusBadRequest, err)
				return
			}
		}

		result, err := fn(ctx, args.(*TArgs))
		if err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}

		renderResponse(ctx, result)
	}
}
