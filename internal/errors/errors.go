package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error 是项目统一的错误类型，Code 对应 HTTP 状态码
type Error struct {
	Message string `json:"message"`
	Cause   error  `json:"-"`
	Code    int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(cause error, code int, message string) *Error {
	return &Error{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

func Newf(cause error, code int, format string, args ...any) *Error {
	return New(cause, code, fmt.Sprintf(format, args...))
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code 返回错误对应的 HTTP 状态码，非 *Error 类型一律视为 500
func Code(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

// Err 将错误写入 gin 响应
func Err(c *gin.Context, err error) {
	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) {
		c.JSON(Code(err), gin.H{"error": e.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
