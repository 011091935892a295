package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 로거 설정
type Config struct {
	// Level 로그 레벨 (debug, info, warn, error, dpanic, panic, fatal)
	Level string
	// Format 로그 포맷 (json, console)
	Format string
	// Output 로그 출력 대상 (stdout, stderr, file)
	Output string
	// FilePath Output이 file일 때의 파일 경로
	FilePath string
	// Development 개발 모드 여부
	Development bool
}

// NewZapLogger 새로운 zap 로거를 생성합니다.
// 알 수 없는 레벨은 info로 처리합니다.
func NewZapLogger(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "@timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.LevelKey = "log.level"
	encoderConfig.MessageKey = "message"
	encoderConfig.CallerKey = "caller"
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := openSink(config)
	if err != nil {
		return nil, err
	}

	logger := zap.New(zapcore.NewCore(encoder, writeSyncer, zap.NewAtomicLevelAt(level)),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if config.Development {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger, nil
}

func openSink(config Config) (zapcore.WriteSyncer, error) {
	switch config.Output {
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "file":
		if config.FilePath == "" {
			return zapcore.AddSync(os.Stdout), nil
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(file), nil
	default:
		return zapcore.AddSync(os.Stdout), nil
	}
}

// DefaultZapLogger 기본 설정으로 zap 로거를 생성합니다.
func DefaultZapLogger() *zap.Logger {
	logger, err := NewZapLogger(Config{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
