// Package apperror 定义统一的业务错误分类与 HTTP 响应输出
//
// 所有请求处理过程中的错误最终汇聚到 Write：按类别映射状态码，
// 生产环境只返回安全消息，开发环境附带完整错误细节。
package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	// KindValidation 输入校验失败 -> 400
	KindValidation Kind = iota
	// KindAuthentication 认证失败（缺失/无效/过期令牌、凭据错误） -> 401
	KindAuthentication
	// KindAuthorization 权限不足 -> 403
	KindAuthorization
	// KindNotFound 资源不存在 -> 404
	KindNotFound
	// KindConflict 资源冲突（如邮箱已注册） -> 409
	KindConflict
	// KindRateLimited 触发限流 -> 429
	KindRateLimited
	// KindOperational 外部依赖或内部故障 -> 500
	KindOperational
)

// Error 带类别的业务错误
type Error struct {
	Kind    Kind
	Message string // 可安全返回给客户端的消息
	Err     error  // 底层错误，仅开发环境暴露
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建指定类别的错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 包装底层错误并附加类别与安全消息
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation 400
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Authentication 401
func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}

// Authorization 403
func Authorization(message string) *Error {
	return New(KindAuthorization, message)
}

// NotFound 404
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Conflict 409
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// RateLimited 429
func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

// Operational 500，包装底层原因
func Operational(message string, err error) *Error {
	return Wrap(KindOperational, message, err)
}

// StatusCode 类别到 HTTP 状态码的映射
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// response 错误响应体
type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Write 终端错误输出：状态码 + JSON 响应
//
// devMode 为 true 时附带底层错误细节；生产环境对 500 级错误
// 只返回固定消息，避免泄露实现细节。
func Write(w http.ResponseWriter, devMode bool, err error) {
	appErr := From(err)

	status := appErr.StatusCode()
	resp := response{Message: appErr.Message}
	if status >= 500 {
		resp.Status = "error"
		if !devMode {
			resp.Message = "Something went very wrong!"
		}
	} else {
		resp.Status = "fail"
	}
	if devMode && appErr.Err != nil {
		resp.Detail = appErr.Err.Error()
	}
	if status >= 500 {
		log.Printf("[apperror] %d %v", status, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("[apperror] 写入错误响应失败: %v", encErr)
	}
}

// From 将任意错误归一化为 *Error，未分类错误按 Operational 处理
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindOperational, Message: "Something went very wrong!", Err: err}
}
