// =============================================================================
// 📦 GuardFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// 环境变量命名规则：配置键大写，如 ollama_url → OLLAMA_URL，
// 嵌套组拼接组名，如 redis.addr → REDIS_ADDR。
// =============================================================================
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 GuardFlow 的完整配置结构
type Config struct {
	// OllamaURL 上游推理后端地址
	OllamaURL string `yaml:"ollama_url" env:"OLLAMA_URL"`
	// OllamaPath 上游路径前缀（通常为空）
	OllamaPath string `yaml:"ollama_path" env:"OLLAMA_PATH"`
	// ProxyHost 代理监听地址
	ProxyHost string `yaml:"proxy_host" env:"PROXY_HOST"`
	// ProxyPort 代理监听端口
	ProxyPort int `yaml:"proxy_port" env:"PROXY_PORT"`
	// MetricsPort Prometheus 指标端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// RequestTimeout 单请求总超时（含排队）
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// OpenAITimeout OpenAI 方言端点的请求超时
	OpenAITimeout time.Duration `yaml:"openai_timeout" env:"OPENAI_TIMEOUT"`

	// EnableInputGuard 是否启用输入扫描
	EnableInputGuard bool `yaml:"enable_input_guard" env:"ENABLE_INPUT_GUARD"`
	// EnableOutputGuard 是否启用输出扫描
	EnableOutputGuard bool `yaml:"enable_output_guard" env:"ENABLE_OUTPUT_GUARD"`
	// BlockOnGuardError 扫描器自身出错时按失败处理（fail closed）
	BlockOnGuardError bool `yaml:"block_on_guard_error" env:"BLOCK_ON_GUARD_ERROR"`
	// ScanFailFast 流水线遇到首个失败立即返回（关闭则全量扫描）
	ScanFailFast bool `yaml:"scan_fail_fast" env:"SCAN_FAIL_FAST"`
	// InlineGuardErrors 拦截结果以成功响应正文返回（而非 451）
	InlineGuardErrors bool `yaml:"inline_guard_errors" env:"INLINE_GUARD_ERRORS"`
	// GuardWindowThreshold 流式输出扫描窗口（字符数）
	GuardWindowThreshold int `yaml:"guard_window_threshold" env:"GUARD_WINDOW_THRESHOLD"`

	// NumParallel 每模型并行上限，整数或 "auto"（按可用内存自动推导）
	NumParallel string `yaml:"ollama_num_parallel" env:"OLLAMA_NUM_PARALLEL"`
	// MaxQueue 每模型等待队列上限
	MaxQueue int `yaml:"ollama_max_queue" env:"OLLAMA_MAX_QUEUE"`

	// CacheEnabled 是否启用扫描结果缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// CacheBackend 缓存后端: auto | memory | distributed
	CacheBackend string `yaml:"cache_backend" env:"CACHE_BACKEND"`
	// CacheMaxSize 本地 LRU 最大条目数
	CacheMaxSize int `yaml:"cache_max_size" env:"CACHE_MAX_SIZE"`
	// CacheTTL 缓存条目存活秒数
	CacheTTL int `yaml:"cache_ttl" env:"CACHE_TTL"`

	// TrustedHosts 允许的来源地址（空表示全部放行）
	TrustedHosts []string `yaml:"trusted_hosts" env:"TRUSTED_HOSTS"`
	// CORSAllowOrigins 允许的跨域来源
	CORSAllowOrigins []string `yaml:"cors_allow_origins" env:"CORS_ALLOW_ORIGINS"`
	// TrustXForwarded 是否信任 X-Forwarded-* 头（位于反向代理之后时开启）
	TrustXForwarded bool `yaml:"trust_x_forwarded" env:"TRUST_X_FORWARDED"`

	// RateLimitRPS 每来源 IP 限流速率（0 关闭）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst 限流桶容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// InputScanners 输入扫描器配置，键为扫描器名（如 ban-substrings）
	InputScanners map[string]ScannerConfig `yaml:"input_scanners" env:"-"`
	// OutputScanners 输出扫描器配置
	OutputScanners map[string]ScannerConfig `yaml:"output_scanners" env:"-"`

	// Server HTTP 服务器细节配置
	Server ServerConfig `yaml:"server" env:"SERVER"`
	// Upstream 上游 HTTP 客户端配置
	Upstream UpstreamConfig `yaml:"upstream" env:"UPSTREAM"`
	// Redis 分布式缓存连接配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// Audit 审计存储配置（driver 为空则关闭）
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`
	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ScannerConfig 单个扫描器的配置。指针字段为 nil 时采用内置默认值。
type ScannerConfig struct {
	// 是否启用（nil 表示按内置默认）
	Enabled *bool `yaml:"enabled"`
	// 风险阈值 [0,1]（nil 表示按内置默认）
	Threshold *float64 `yaml:"threshold"`
	// 拦截子串列表（ban-substrings 专用）
	Substrings []string `yaml:"substrings"`
	// 目标语言列表（code 专用）
	Languages []string `yaml:"languages"`
	// 命中动作: block | sanitize（anonymize/secrets 专用）
	Action string `yaml:"action"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时。流式响应长驻，0 表示不限制
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// UpstreamConfig 上游客户端配置
type UpstreamConfig struct {
	// 连接池最大连接数
	MaxConns int `yaml:"max_conns" env:"MAX_CONNS"`
	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 空闲连接存活时间
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout" env:"IDLE_CONN_TIMEOUT"`
	// 建连超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	// 读超时（逐帧；流式响应按帧计）
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 连接池获取超时
	PoolTimeout time.Duration `yaml:"pool_timeout" env:"POOL_TIMEOUT"`
	// 传输层错误重试次数（不重试 HTTP 状态码）
	Retries int `yaml:"retries" env:"RETRIES"`
	// 对明文后端启用 HTTP/2 (h2c)
	H2C bool `yaml:"h2c" env:"H2C"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// AuditConfig 审计存储配置
type AuditConfig struct {
	// 驱动类型: postgres, mysql, sqlite；为空则关闭审计
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器。默认无环境变量前缀（ollama_url → OLLAMA_URL）。
func NewLoader() *Loader {
	return &Loader{
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := envTag
		if prefix != "" {
			envKey = prefix + "_" + envTag
		}

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.OllamaURL == "" {
		errs = append(errs, "ollama_url is required")
	} else if _, err := url.Parse(c.OllamaURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid ollama_url: %v", err))
	}

	if c.ProxyPort <= 0 || c.ProxyPort > 65535 {
		errs = append(errs, "invalid proxy port")
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.NumParallel != "auto" {
		if n, err := strconv.Atoi(c.NumParallel); err != nil || n <= 0 {
			errs = append(errs, "ollama_num_parallel must be a positive integer or \"auto\"")
		}
	}
	if c.MaxQueue < 0 {
		errs = append(errs, "ollama_max_queue must be non-negative")
	}

	if c.GuardWindowThreshold <= 0 {
		errs = append(errs, "guard_window_threshold must be positive")
	}

	switch c.CacheBackend {
	case "auto", "memory", "distributed":
	default:
		errs = append(errs, "cache_backend must be auto, memory or distributed")
	}
	if c.CacheMaxSize <= 0 {
		errs = append(errs, "cache_max_size must be positive")
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, "cache_ttl must be positive")
	}

	for name, sc := range c.InputScanners {
		if sc.Threshold != nil && (*sc.Threshold < 0 || *sc.Threshold > 1) {
			errs = append(errs, fmt.Sprintf("input_scanners.%s.threshold must be in [0,1]", name))
		}
	}
	for name, sc := range c.OutputScanners {
		if sc.Threshold != nil && (*sc.Threshold < 0 || *sc.Threshold > 1) {
			errs = append(errs, fmt.Sprintf("output_scanners.%s.threshold must be in [0,1]", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ResolveParallel 解析 ollama_num_parallel。
// 返回 (并行数, 是否 auto)；auto 时并行数为 0，由准入控制器按内存推导。
func (c *Config) ResolveParallel() (int, bool) {
	if c.NumParallel == "" || c.NumParallel == "auto" {
		return 0, true
	}
	n, err := strconv.Atoi(c.NumParallel)
	if err != nil || n <= 0 {
		return 0, true
	}
	return n, false
}

// CacheTTLDuration 返回缓存 TTL 的 time.Duration 形式
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// DSN 返回审计数据库连接字符串
func (a *AuditConfig) DSN() string {
	switch a.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			a.Host, a.Port, a.User, a.Password, a.Name, a.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			a.User, a.Password, a.Host, a.Port, a.Name,
		)
	case "sqlite":
		return a.Name
	default:
		return ""
	}
}

// Enabled 审计是否启用（配置了驱动即启用）
func (a *AuditConfig) Enabled() bool {
	return a.Driver != ""
}
