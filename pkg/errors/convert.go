package errors

import "net/http"

// 에러 코드별 HTTP 상태 코드 매핑 테이블
var httpStatusByCode = map[string]int{
	ErrInternal:           http.StatusInternalServerError,
	ErrNotFound:           http.StatusNotFound,
	ErrInvalidArgument:    http.StatusBadRequest,
	ErrUnauthenticated:    http.StatusUnauthorized,
	ErrUnauthorized:       http.StatusForbidden,
	ErrConflict:           http.StatusConflict,
	ErrTimeout:            http.StatusGatewayTimeout,
	ErrNotImplemented:     http.StatusNotImplemented,
	ErrValidation:         http.StatusBadRequest,
	ErrGatewayUnavailable: http.StatusServiceUnavailable,
	ErrInvalidSignature:   http.StatusBadRequest,
	ErrInvalidTransition:  http.StatusConflict,
}

// ToHTTPStatus는 에러 코드를 HTTP 상태 코드로 변환합니다.
// 등록되지 않은 코드는 500으로 처리합니다.
func ToHTTPStatus(code string) int {
	if status, ok := httpStatusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
