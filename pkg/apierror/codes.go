package apierror

import "net/http"

// 实例生命周期相关的预定义错误
// 错误码风格参考 AWS EC2 API
// https://docs.aws.amazon.com/AWSEC2/latest/APIReference/errors-overview.html
var (
	// ErrInstanceNotFound 指定的实例不存在
	ErrInstanceNotFound = &Error{
		Code:       "InvalidInstanceID.NotFound",
		Message:    "The specified instance does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrIncorrectInstanceState 实例当前状态不允许该操作
	// 例如对一个已经迁移到其他宿主机的实例再次发起迁移
	ErrIncorrectInstanceState = &Error{
		Code:       "IncorrectInstanceState",
		Message:    "The instance is not in a state from which this operation can be performed.",
		HTTPStatus: http.StatusConflict,
	}

	// ErrInvalidParameterValue 请求参数非法
	// 例如无法解析的内存页预算字符串
	ErrInvalidParameterValue = &Error{
		Code:       "InvalidParameterValue",
		Message:    "A value specified in a parameter is not valid.",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInternalError 内部错误（驱动调用失败、存储不可用等）
	ErrInternalError = &Error{
		Code:       "InternalError",
		Message:    "An internal error has occurred.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
