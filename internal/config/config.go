// Package config 提供服务配置管理
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 服务配置
type Config struct {
	// HTTP 服务器配置
	Server ServerConfig
	// Kafka 配置
	Kafka KafkaConfig
	// InfluxDB 配置
	Influx InfluxConfig
	// Redis 配置
	Redis RedisConfig
	// 写入器配置
	Store StoreConfig
	// WebSocket 广播配置
	Hub HubConfig
	// 功率配置
	Power PowerConfig
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers []string
	// 订阅的主题列表
	Topics []string
	// 结构化多通道主题（Shelly 2PM 脚本上报）
	StructuredTopic string
	GroupID         string
	MinBytes        int
	MaxBytes        int
	MaxWait         time.Duration
}

// InfluxConfig InfluxDB 配置
type InfluxConfig struct {
	URL    string
	Org    string
	Token  string
	Bucket string
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	SnapshotTTL  time.Duration
}

// StoreConfig 持久化写入器配置
type StoreConfig struct {
	// 写入缓冲区大小
	BufferSize int
	// 工作协程数
	Workers int
	// 单次写入超时
	WriteTimeout time.Duration
}

// HubConfig WebSocket 广播配置
type HubConfig struct {
	// 每客户端发送缓冲区大小
	MessageBufferSize int
	WriteTimeout      time.Duration
	ReadBufferSize    int
	WriteBufferSize   int
}

// PowerConfig 功率配置
type PowerConfig struct {
	// 电压缺省值（市电标称电压）
	NominalVoltage float64
}

// Load 从环境变量加载配置
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topics:          getEnvSlice("KAFKA_TOPICS", []string{"house-dashboard.power.shelly2pm"}),
			StructuredTopic: getEnv("KAFKA_STRUCTURED_TOPIC", "house-dashboard.power.shelly2pm"),
			GroupID:         getEnv("KAFKA_GROUP_ID", "power-telemetry"),
			MinBytes:        getEnvInt("KAFKA_MIN_BYTES", 1),
			MaxBytes:        getEnvInt("KAFKA_MAX_BYTES", 10*1024*1024),
			MaxWait:         getEnvDuration("KAFKA_MAX_WAIT", 500*time.Millisecond),
		},
		Influx: InfluxConfig{
			URL:    getEnv("INFLUX_URL", "http://localhost:8086"),
			Org:    getEnv("INFLUX_ORG", "house-dashboard"),
			Token:  getEnv("INFLUX_TOKEN", ""),
			Bucket: getEnv("INFLUX_BUCKET", "power-readings"),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", true),
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			SnapshotTTL:  getEnvDuration("REDIS_SNAPSHOT_TTL", 5*time.Minute),
		},
		Store: StoreConfig{
			BufferSize:   getEnvInt("STORE_BUFFER_SIZE", 4096),
			Workers:      getEnvInt("STORE_WORKERS", 2),
			WriteTimeout: getEnvDuration("STORE_WRITE_TIMEOUT", 5*time.Second),
		},
		Hub: HubConfig{
			MessageBufferSize: getEnvInt("HUB_MESSAGE_BUFFER", 256),
			WriteTimeout:      getEnvDuration("HUB_WRITE_TIMEOUT", 5*time.Second),
			ReadBufferSize:    getEnvInt("HUB_READ_BUFFER", 1024),
			WriteBufferSize:   getEnvInt("HUB_WRITE_BUFFER", 4096),
		},
		Power: PowerConfig{
			NominalVoltage: getEnvFloat("NOMINAL_VOLTAGE", 230),
		},
	}
}

// 辅助函数

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if part != "" {
				result = append(result, part)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
