package errors

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrorResponse는 API 에러 응답 본문입니다
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ToErrorResponse는 에러를 HTTP 상태 코드와 응답 본문으로 변환합니다.
// 내부 에러(500)의 상세 내용은 응답에 노출하지 않습니다.
func ToErrorResponse(err error) (int, ErrorResponse) {
	if echoErr, ok := err.(*echo.HTTPError); ok {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, ErrorResponse{
			Error:   strings.ToLower(httpStatusToCode(echoErr.Code)),
			Message: msg,
		}
	}

	code := CodeOf(err)
	status := ToHTTPStatus(code)
	if status >= http.StatusInternalServerError && code == ErrInternal {
		return status, ErrorResponse{
			Error:   strings.ToLower(code),
			Message: http.StatusText(status),
		}
	}

	msg := err.Error()
	var m Messager
	if As(err, &m) {
		msg = m.Message()
	}
	return status, ErrorResponse{
		Error:   strings.ToLower(code),
		Message: msg,
	}
}

// httpStatusToCode는 HTTP 상태 코드를 내부 에러 코드로 변환합니다
func httpStatusToCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrInvalidArgument
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusConflict:
		return ErrConflict
	case http.StatusServiceUnavailable:
		return ErrGatewayUnavailable
	case http.StatusGatewayTimeout:
		return ErrTimeout
	case http.StatusNotImplemented:
		return ErrNotImplemented
	default:
		return ErrInternal
	}
}
