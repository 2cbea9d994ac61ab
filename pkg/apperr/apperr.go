package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"go-storefront/pkg/store"
	"go-storefront/pkg/validation"
)

// Kind 错误分类
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate_limited"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Error 是对外可见的业务错误，Status 即 HTTP 状态码
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string, details any) *Error {
	if msg == "" {
		msg = "Invalid input."
	}
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg, Details: details}
}

func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Authentication credentials were not provided."
	}
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "You do not have permission to perform this action."
	}
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

// NotFound 消息固定，不暴露资源是否存在
func NotFound() *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: "Not found."}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: msg}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: "Request was throttled. Please try again later."}
}

// Upstream 第三方(支付渠道)失败，status 只能是 400 或 502
func Upstream(status int, msg string, err error) *Error {
	if status != http.StatusBadRequest {
		status = http.StatusBadGateway
	}
	return &Error{Kind: KindUpstream, Status: status, Message: msg, Err: err}
}

// Internal 对外只返回通用信息，原始错误保留在 Err 中供日志使用
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "A server error occurred.", Err: err}
}

// From 把任意错误翻译成 *Error
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return Validation("", fields)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NotFound()
	case errors.Is(err, store.ErrDuplicate):
		return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: "A record with the same unique value already exists.", Err: err}
	case errors.Is(err, store.ErrInsufficientStock):
		return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: "Insufficient stock.", Err: err}
	case errors.Is(err, store.ErrStaleState):
		return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: "The resource was modified concurrently.", Err: err}
	case errors.Is(err, store.ErrReferenced):
		return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: "The resource is still referenced.", Err: err}
	}
	return Internal(err)
}
