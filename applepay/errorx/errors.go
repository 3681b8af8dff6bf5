package errorx

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrClientNotInitialized = errors.New("client not initialized")
	ErrUnsupportedVersion   = errors.New("unsupported version")
	ErrTokenFormat          = errors.New("token format error")
	ErrCertificate          = errors.New("certificate error")
	ErrSignature            = errors.New("signature error")
	ErrKey                  = errors.New("key error")
)

// TokenError 支付Token错误
type TokenError struct {
	Code    string
	Message string
	Cause   error
}

// Error 实现error接口
func (e *TokenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误解包
func (e *TokenError) Unwrap() error {
	return e.Cause
}

// Is 实现错误比较
func (e *TokenError) Is(target error) bool {
	if target == nil {
		return false
	}

	if te, ok := target.(*TokenError); ok {
		return e.Code == te.Code
	}

	switch target {
	case ErrUnsupportedVersion:
		return e.Code == ErrorCodeUnsupportedVersion
	case ErrTokenFormat:
		return e.Code == ErrorCodeTokenFormat
	case ErrCertificate:
		return e.Code == ErrorCodeCertificate
	case ErrSignature:
		return e.Code == ErrorCodeSignature
	case ErrKey:
		return e.Code == ErrorCodeKey
	}

	return errors.Is(e.Cause, target)
}

// NewVersionError 创建版本错误
func NewVersionError(message string) *TokenError {
	return &TokenError{Code: ErrorCodeUnsupportedVersion, Message: message}
}

// NewFormatError 创建格式错误
func NewFormatError(message string) *TokenError {
	return &TokenError{Code: ErrorCodeTokenFormat, Message: message}
}

// NewCertificateError 创建证书错误
func NewCertificateError(message string, cause error) *TokenError {
	return &TokenError{Code: ErrorCodeCertificate, Message: message, Cause: cause}
}

// NewSignatureError 创建签名错误
func NewSignatureError(message string, cause error) *TokenError {
	return &TokenError{Code: ErrorCodeSignature, Message: message, Cause: cause}
}

// NewKeyError 创建密钥错误
func NewKeyError(message string) *TokenError {
	return &TokenError{Code: ErrorCodeKey, Message: message}
}

// 错误代码常量
const (
	ErrorCodeInvalidConfig      = "INVALID_CONFIG"
	ErrorCodeNotInitialized     = "NOT_INITIALIZED"
	ErrorCodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	ErrorCodeTokenFormat        = "TOKEN_FORMAT"
	ErrorCodeCertificate        = "CERTIFICATE"
	ErrorCodeSignature          = "SIGNATURE"
	ErrorCodeKey                = "KEY"
)
