package errors

// 공통 에러 코드 정의
const (
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrTimeout         = "TIMEOUT"
	ErrNotImplemented  = "NOT_IMPLEMENTED"
)

// 결제 도메인 에러 코드
const (
	// ErrValidation 요청 형식 또는 금액 오류 (재시도 불가)
	ErrValidation = "VALIDATION_ERROR"
	// ErrGatewayUnavailable 결제 게이트웨이 일시 장애
	ErrGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	// ErrInvalidSignature 웹훅 서명 검증 실패
	ErrInvalidSignature = "INVALID_SIGNATURE"
	// ErrInvalidTransition 원장 상태와 맞지 않는 이벤트
	ErrInvalidTransition = "INVALID_TRANSITION"
)
