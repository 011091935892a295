// Package config는 애플리케이션 설정을 관리하는 패키지입니다.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 인터페이스는 설정 값에 액세스하기 위한 메서드를 정의합니다.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	GetAll() map[string]interface{}
	// Unmarshal은 전체 설정을 mapstructure 태그가 붙은 구조체로 디코딩합니다.
	Unmarshal(out interface{}) error
}

// viperConfig는 viper를 사용하여 Config 인터페이스를 구현합니다.
type viperConfig struct {
	v *viper.Viper
}

func (c *viperConfig) GetString(key string) string          { return c.v.GetString(key) }
func (c *viperConfig) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *viperConfig) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *viperConfig) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *viperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *viperConfig) GetStringSlice(key string) []string   { return c.v.GetStringSlice(key) }
func (c *viperConfig) GetAll() map[string]interface{}       { return c.v.AllSettings() }
func (c *viperConfig) Unmarshal(out interface{}) error      { return c.v.Unmarshal(out) }

// 설정 디렉토리 경로
const configDir = "configs"

// Load는 지정된 서비스 이름에 해당하는 설정 파일을 로드합니다.
func Load(serviceName string) (Config, error) {
	return LoadWithDefaults(serviceName, nil)
}

// LoadWithDefaults는 기본값을 등록한 뒤 설정 파일을 로드합니다.
// 기본값이 등록된 키만 Unmarshal 시 환경 변수로 덮어쓸 수 있습니다.
// 예: 서비스 이름이 payment이면 payment.max_amount는 PAYMENT_PAYMENT_MAX_AMOUNT로 지정합니다.
func LoadWithDefaults(serviceName string, defaults map[string]interface{}) (Config, error) {
	v := viper.New()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix(strings.ToUpper(serviceName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// CONFIG_PATH가 파일이면 그대로, 디렉토리면 {service}.yaml을 찾습니다
	configPath := os.Getenv("CONFIG_PATH")
	switch {
	case configPath != "" && filepath.Ext(configPath) != "":
		v.SetConfigFile(configPath)
	case configPath != "":
		v.SetConfigName(serviceName)
		v.AddConfigPath(configPath)
	default:
		v.SetConfigName(serviceName)
		v.AddConfigPath(filepath.Join(configDir, env))
		v.AddConfigPath(filepath.Join(configDir, "example"))
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("설정 파일 로드 실패: %w", err)
	}

	return &viperConfig{v: v}, nil
}
