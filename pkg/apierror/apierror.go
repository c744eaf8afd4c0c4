package apierror

import (
	"encoding/xml"
	"fmt"
)

// ErrorResponse AWS 风格的错误响应结构
type ErrorResponse struct {
	XMLName   xml.Name `xml:"Response"     json:"-"`
	Errors    []Error  `xml:"Errors>Error" json:"errors"`
	RequestID string   `xml:"RequestID"    json:"requestID"`
}

func (er *ErrorResponse) Error() string {
	str := fmt.Sprintf("RequestID: %s", er.RequestID)
	for _, e := range er.Errors {
		str += fmt.Sprintf("; %s", e.Error())
	}
	return str
}

// Error 单个错误信息
type Error struct {
	Code       string `xml:"Code"    json:"code"`
	Message    string `xml:"Message" json:"message"`
	HTTPStatus int    `xml:"-"       json:"-"` // HTTP 状态码，不会序列化到响应中
	RawError   error  `xml:"-"       json:"-"` // 内部错误，用于服务端调试，不会序列化到响应中
}

// Error 实现 error 接口
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.RawError != nil {
		str += fmt.Sprintf(" (RawError: %v)", e.RawError)
	}
	return str
}

// Is 实现 errors.Is 接口，按 Code 判断错误类型
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Unwrap 实现 errors.Unwrap 接口，返回底层错误
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.RawError
}

var _ interface {
	Error() string
	Is(target error) bool
	Unwrap() error
} = (*Error)(nil)

// NewError 创建新的错误
// 默认 HTTP 状态码为 500
func NewError(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: 500,
	}
}

// NewErrorWithStatus 创建新的错误，指定 HTTP 状态码
func NewErrorWithStatus(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// WrapError 包装预定义的错误，添加原始错误信息
// 保留预定义错误的 Code 和 HTTPStatus，但使用自定义消息和原始错误
func WrapError(baseErr *Error, message string, rawError error) *Error {
	return &Error{
		Code:       baseErr.Code,
		Message:    message,
		HTTPStatus: baseErr.HTTPStatus,
		RawError:   rawError,
	}
}

// NewErrorResponse 创建新的错误响应
func NewErrorResponse(requestID string, errors ...*Error) *ErrorResponse {
	errs := make([]Error, len(errors))
	for i, e := range errors {
		errs[i] = *e
	}
	return &ErrorResponse{
		Errors:    errs,
		RequestID: requestID,
	}
}
