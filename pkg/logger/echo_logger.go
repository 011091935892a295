package logger

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/wekeepgrowing/academy-payments/pkg/errors"
)

// 로그에 원문을 남기지 않는 헤더
var maskedHeaders = map[string]bool{
	"Authorization":    true,
	"Stripe-Signature": true,
}

// NewEchoRequestLogger는 zap으로 HTTP 요청/응답을 기록하는 Echo 미들웨어를 생성합니다.
// /health, /metrics 요청은 기록하지 않습니다.
func NewEchoRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		HandleError: true,

		LogLatency:       true,
		LogRemoteIP:      true,
		LogMethod:        true,
		LogURI:           true,
		LogRoutePath:     true,
		LogRequestID:     true,
		LogUserAgent:     true,
		LogStatus:        true,
		LogError:         true,
		LogContentLength: true,
		LogResponseSize:  true,
		LogHeaders:       []string{"Content-Type", "Authorization", "Stripe-Signature"},
		LogQueryParams:   []string{"beneficiary_id", "status", "limit", "offset", "older_than"},

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request.remote_ip", v.RemoteIP),
				zap.String("request.method", v.Method),
				zap.String("request.uri", v.URI),
				zap.String("request.route", v.RoutePath),
				zap.String("request.user_agent", v.UserAgent),
				zap.String("request.request_id", v.RequestID),
				zap.String("request.content_length", v.ContentLength),
				zap.Int("response.status", v.Status),
				zap.Duration("response.latency", v.Latency),
				zap.Int64("response.response_size", v.ResponseSize),
			}

			if len(v.Headers) > 0 {
				headers := make(map[string]string, len(v.Headers))
				for k, values := range v.Headers {
					if len(values) == 0 {
						continue
					}
					headers[k] = maskHeader(k, values[0])
				}
				fields = append(fields, zap.Any("request.headers", headers))
			}
			if len(v.QueryParams) > 0 {
				fields = append(fields, zap.Any("request.query_params", v.QueryParams))
			}

			switch {
			case v.Error != nil && v.Status >= http.StatusInternalServerError:
				logger.Error("Request failed", append(fields, zap.Error(v.Error))...)
			case v.Status >= http.StatusBadRequest:
				if v.Error != nil {
					fields = append(fields, zap.Error(v.Error))
				}
				logger.Warn("Client error", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
			return nil
		},
	})
}

// maskHeader는 민감한 헤더 값의 앞뒤 일부만 남깁니다
func maskHeader(name, value string) string {
	if !maskedHeaders[name] {
		return value
	}
	if len(value) > 15 {
		return value[:10] + "..." + value[len(value)-5:]
	}
	return "[MASKED]"
}

// WithEchoLogger는 Echo의 내장 로거를 zap으로 교체하고
// 에러를 {error, message} 본문으로 응답하는 에러 핸들러를 설정합니다.
func WithEchoLogger(e *echo.Echo, logger *zap.Logger) {
	e.Logger = NewEchoZapLogger(logger)
	e.HTTPErrorHandler = NewHTTPErrorHandler(logger)
}

// NewHTTPErrorHandler는 pkg/errors 코드 테이블로 상태 코드를 결정하는 Echo 에러 핸들러를 생성합니다
func NewHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := apperrors.ToErrorResponse(err)
		if he, ok := err.(*echo.HTTPError); ok {
			if resp, ok := he.Message.(apperrors.ErrorResponse); ok {
				body = resp
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error("HTTP error",
				zap.Error(err),
				zap.Int("status", status),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("Failed to send error response", zap.Error(err))
		}
	}
}

// EchoZapLogger는 echo.Logger 인터페이스를 구현한 zap 로거 래퍼입니다.
type EchoZapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	level  log.Lvl
	prefix string
}

// NewEchoZapLogger는 Echo의 Logger 인터페이스를 구현한 zap 로거 래퍼를 생성합니다.
func NewEchoZapLogger(logger *zap.Logger) *EchoZapLogger {
	return &EchoZapLogger{
		logger: logger,
		sugar:  logger.Sugar(),
		level:  gommonLevel(logger.Level()),
	}
}

func gommonLevel(l zapcore.Level) log.Lvl {
	switch {
	case l <= zapcore.DebugLevel:
		return log.DEBUG
	case l == zapcore.InfoLevel:
		return log.INFO
	case l == zapcore.WarnLevel:
		return log.WARN
	default:
		return log.ERROR
	}
}

func (l *EchoZapLogger) Output() io.Writer {
	return &zapWriter{logger: l.logger}
}

func (l *EchoZapLogger) SetOutput(io.Writer) {}

func (l *EchoZapLogger) Level() log.Lvl {
	return l.level
}

func (l *EchoZapLogger) SetLevel(v log.Lvl) {
	l.level = v
}

func (l *EchoZapLogger) SetHeader(string) {}

func (l *EchoZapLogger) Prefix() string {
	return l.prefix
}

func (l *EchoZapLogger) SetPrefix(p string) {
	l.prefix = p
}

func (l *EchoZapLogger) Print(i ...interface{}) {
	l.sugar.Info(i...)
}

func (l *EchoZapLogger) Printf(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *EchoZapLogger) Printj(j log.JSON) {
	l.logger.Info("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Debug(i ...interface{}) {
	l.sugar.Debug(i...)
}

func (l *EchoZapLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *EchoZapLogger) Debugj(j log.JSON) {
	l.logger.Debug("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Info(i ...interface{}) {
	l.sugar.Info(i...)
}

func (l *EchoZapLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *EchoZapLogger) Infoj(j log.JSON) {
	l.logger.Info("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Warn(i ...interface{}) {
	l.sugar.Warn(i...)
}

func (l *EchoZapLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *EchoZapLogger) Warnj(j log.JSON) {
	l.logger.Warn("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Error(i ...interface{}) {
	l.sugar.Error(i...)
}

func (l *EchoZapLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *EchoZapLogger) Errorj(j log.JSON) {
	l.logger.Error("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Fatal(i ...interface{}) {
	l.sugar.Fatal(i...)
}

func (l *EchoZapLogger) Fatalf(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

func (l *EchoZapLogger) Fatalj(j log.JSON) {
	l.logger.Fatal("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Panic(i ...interface{}) {
	l.sugar.Panic(i...)
}

func (l *EchoZapLogger) Panicf(format string, args ...interface{}) {
	l.sugar.Panicf(format, args...)
}

func (l *EchoZapLogger) Panicj(j log.JSON) {
	l.logger.Panic("json_message", zap.Any("json", j))
}

// zapWriter는 Echo가 Output()으로 쓰는 내용을 INFO 로그로 남깁니다
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
