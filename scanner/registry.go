package scanner

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/config"
)

// Descriptor 内置扫描器的注册项
type Descriptor struct {
	// Name 契约名称
	Name string
	// Kind 适用类别
	Kind Kind
	// Default 未被配置或环境变量覆盖时是否启用
	Default bool
	// Build 按配置构造实例。输入侧与输出侧各构造一次，互不共享
	Build func(sc config.ScannerConfig, deps BuildDeps) (Scanner, error)
}

// BuildDeps 构造扫描器时可用的共享依赖
type BuildDeps struct {
	// Vault 匿名化令牌保管库，流水线生命周期内共享
	Vault *Vault
}

// Registry 扫描器注册表。
// 注册顺序即流水线执行顺序；禁用的扫描器在构建期被剔除。
type Registry struct {
	descriptors map[string]*Descriptor
	order       []string
	vault       *Vault
	logger      *zap.Logger
}

// NewRegistry 创建注册表并注册全部内置扫描器
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		descriptors: make(map[string]*Descriptor),
		vault:       NewVault(),
		logger:      logger,
	}

	r.Register(&Descriptor{
		Name: NameBanSubstrings, Kind: KindBoth, Default: true,
		Build: func(sc config.ScannerConfig, _ BuildDeps) (Scanner, error) {
			return NewBanSubstrings(sc.Substrings), nil
		},
	})
	r.Register(&Descriptor{
		Name: NameSecrets, Kind: KindInput, Default: true,
		Build: func(sc config.ScannerConfig, _ BuildDeps) (Scanner, error) {
			return NewSecrets(), nil
		},
	})
	r.Register(&Descriptor{
		Name: NameAnonymise, Kind: KindInput, Default: false,
		Build: func(sc config.ScannerConfig, deps BuildDeps) (Scanner, error) {
			return NewAnonymise(deps.Vault), nil
		},
	})
	r.Register(&Descriptor{
		Name: NamePromptInjection, Kind: KindInput, Default: true,
		Build: func(sc config.ScannerConfig, _ BuildDeps) (Scanner, error) {
			return NewPromptInjection(thresholdOr(sc, defaultInjectionThreshold)), nil
		},
	})
	r.Register(&Descriptor{
		Name: NameToxicity, Kind: KindBoth, Default: true,
		Build: func(sc config.ScannerConfig, _ BuildDeps) (Scanner, error) {
			return NewToxicity(thresholdOr(sc, defaultToxicityThreshold)), nil
		},
	})
	r.Register(&Descriptor{
		Name: NameCode, Kind: KindBoth, Default: false,
		Build: func(sc config.ScannerConfig, _ BuildDeps) (Scanner, error) {
			return NewCode(sc.Languages, sc.Action != "warn"), nil
		},
	})
	r.Register(&Descriptor{
		Name: NameMaliciousURLs, Kind: KindOutput, Default: true,
		Build: func(sc config.ScannerConfig, _ BuildDeps) (Scanner, error) {
			return NewMaliciousURLs(thresholdOr(sc, defaultURLThreshold)), nil
		},
	})
	r.Register(&Descriptor{
		Name: NameNoRefusal, Kind: KindOutput, Default: true,
		Build: func(sc config.ScannerConfig, _ BuildDeps) (Scanner, error) {
			return NewNoRefusal(thresholdOr(sc, defaultRefusalThreshold)), nil
		},
	})

	return r
}

// Register 注册一个扫描器。重名时覆盖原描述符但保留原顺序位
func (r *Registry) Register(d *Descriptor) {
	if _, exists := r.descriptors[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.descriptors[d.Name] = d
}

// Vault 返回匿名化令牌保管库
func (r *Registry) Vault() *Vault {
	return r.vault
}

// BuildPipeline 按配置与环境变量覆盖构建流水线。
// 启用判定优先级：环境变量 > 配置文件 > 内置默认。
func (r *Registry) BuildPipeline(cfg *config.Config, opts Options) (*Pipeline, error) {
	deps := BuildDeps{Vault: r.vault}

	input, err := r.buildSide(KindInput, cfg.InputScanners, deps)
	if err != nil {
		return nil, err
	}
	output, err := r.buildSide(KindOutput, cfg.OutputScanners, deps)
	if err != nil {
		return nil, err
	}

	r.logger.Info("扫描流水线已构建",
		zap.Strings("input_scanners", names(input)),
		zap.Strings("output_scanners", names(output)),
		zap.Bool("fail_fast", opts.FailFast))

	return NewPipeline(input, output, opts), nil
}

// buildSide 构建单侧扫描器列表，顺序与注册顺序一致
func (r *Registry) buildSide(side Kind, scfgs map[string]config.ScannerConfig, deps BuildDeps) ([]Scanner, error) {
	var scanners []Scanner
	for _, name := range r.order {
		d := r.descriptors[name]
		if d.Kind != side && d.Kind != KindBoth {
			continue
		}

		sc := scfgs[name]
		if !r.resolveEnabled(side, d, sc) {
			continue
		}

		s, err := d.Build(sc, deps)
		if err != nil {
			return nil, fmt.Errorf("构建扫描器 %s 失败: %w", name, err)
		}
		scanners = append(scanners, s)
	}
	return scanners, nil
}

// resolveEnabled 判定扫描器是否启用。
// 依次检查环境变量覆盖、配置文件条目、内置默认值。
func (r *Registry) resolveEnabled(side Kind, d *Descriptor, sc config.ScannerConfig) bool {
	if v, ok := envEnabled(side, d.Name); ok {
		return v
	}
	if sc.Enabled != nil {
		return *sc.Enabled
	}
	return d.Default
}

// envEnabled 读取形如 INPUT_SCANNER_BAN_SUBSTRINGS_ENABLED 的环境变量覆盖
func envEnabled(side Kind, name string) (bool, bool) {
	key := EnvOverrideKey(side, name)
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// EnvOverrideKey 返回扫描器启用开关对应的环境变量名
func EnvOverrideKey(side Kind, name string) string {
	prefix := "INPUT"
	if side == KindOutput {
		prefix = "OUTPUT"
	}
	return prefix + "_SCANNER_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_ENABLED"
}

func thresholdOr(sc config.ScannerConfig, fallback float64) float64 {
	if sc.Threshold != nil {
		return *sc.Threshold
	}
	return fallback
}

func names(scanners []Scanner) []string {
	out := make([]string, 0, len(scanners))
	for _, s := range scanners {
		out = append(out, s.Name())
	}
	return out
}
