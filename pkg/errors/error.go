package errors

import (
	"errors"
	"fmt"
)

// 표준 라이브러리 함수 재노출
var (
	New    = errors.New
	Unwrap = errors.Unwrap
	Is     = errors.Is
	As     = errors.As
)

// Error는 기본 에러 인터페이스를 확장합니다
type Error interface {
	error
	Code() string
	Unwrap() error
}

// Coder는 자체 에러 코드를 가진 도메인 에러가 구현합니다.
// AppError로 감싸지 않아도 CodeOf가 코드를 찾을 수 있습니다.
type Coder interface {
	Code() string
}

// Messager는 내부 원인을 숨긴 사용자용 메시지를 제공하는 에러가 구현합니다
type Messager interface {
	Message() string
}

// AppError는 기본 에러 구현체입니다
type AppError struct {
	code    string
	message string
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.message, e.err.Error())
	}
	return e.message
}

func (e *AppError) Code() string {
	return e.code
}

// Message는 내부 원인을 제외한 사용자용 메시지를 반환합니다
func (e *AppError) Message() string {
	return e.message
}

func (e *AppError) Unwrap() error {
	return e.err
}

// NewAppError는 새 애플리케이션 에러를 생성합니다
func NewAppError(code string, message string, err error) *AppError {
	return &AppError{
		code:    code,
		message: message,
		err:     err,
	}
}

// Wrap은 기존 에러를 래핑합니다. 원래 에러의 코드는 유지됩니다.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return NewAppError(CodeOf(err), message, err)
}

// CodeOf는 에러 체인에서 가장 가까운 에러 코드를 찾습니다
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var coder Coder
	if As(err, &coder) {
		return coder.Code()
	}
	return ErrInternal
}
