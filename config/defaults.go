// =============================================================================
// 📦 GuardFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		OllamaURL:      "http://localhost:11434",
		OllamaPath:     "",
		ProxyHost:      "0.0.0.0",
		ProxyPort:      11435,
		MetricsPort:    9091,
		RequestTimeout: 300 * time.Second,
		OpenAITimeout:  300 * time.Second,

		EnableInputGuard:     true,
		EnableOutputGuard:    true,
		BlockOnGuardError:    false,
		ScanFailFast:         true,
		InlineGuardErrors:    false,
		GuardWindowThreshold: 100,

		NumParallel: "auto",
		MaxQueue:    512,

		CacheEnabled: true,
		CacheBackend: "auto",
		CacheMaxSize: 1000,
		CacheTTL:     3600,

		TrustedHosts:     nil,
		CORSAllowOrigins: nil,
		TrustXForwarded:  false,

		RateLimitRPS:   0,
		RateLimitBurst: 0,

		InputScanners:  map[string]ScannerConfig{},
		OutputScanners: map[string]ScannerConfig{},

		Server:    DefaultServerConfig(),
		Upstream:  DefaultUpstreamConfig(),
		Redis:     DefaultRedisConfig(),
		Audit:     DefaultAuditConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout: 30 * time.Second,
		// 流式生成可长达数分钟，写超时由请求级超时控制
		WriteTimeout:    0,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultUpstreamConfig 返回默认上游客户端配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		MaxConns:        100,
		MaxIdleConns:    20,
		IdleConnTimeout: 90 * time.Second,
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     300 * time.Second,
		WriteTimeout:    30 * time.Second,
		PoolTimeout:     10 * time.Second,
		Retries:         2,
		H2C:             false,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultAuditConfig 返回默认审计配置（默认关闭）
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Driver:          "",
		Host:            "localhost",
		Port:            5432,
		User:            "guardflow",
		Password:        "",
		Name:            "guardflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "guardflow",
		SampleRate:   0.1,
	}
}
