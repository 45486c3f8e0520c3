package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/uva-judge/internal/judge"
)

// Config holds runtime configuration values for the judge.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	LogLevel         string
	WorkDirectory    string
	ProblemDirectory string
	MaxWorkers       int
	MaxOutputBytes   int64
	MaxUploadBytes   int64
	CompileTimeout   time.Duration
	CacheTTL         time.Duration
	RateLimitMax     int
	RateLimitWindow  time.Duration
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	NATSSubject      string
	Languages        map[string]LanguageConfig
}

// LanguageConfig is the toolchain configuration for one normalized language.
type LanguageConfig struct {
	Compiler       string
	Args           []string
	Restricted     []string
	FileExtensions []string
	OutputFlag     string
	Launcher       string
}

var defaultLanguages = map[string]LanguageConfig{
	"python2": {
		Compiler:       "python2",
		Restricted:     []string{"subprocess", "os.system", "socket"},
		FileExtensions: []string{"py"},
	},
	"python3": {
		Compiler:       "python3",
		Restricted:     []string{"subprocess", "os.system", "socket"},
		FileExtensions: []string{"py"},
	},
	"c_sharp": {
		Compiler:       "mcs",
		Restricted:     []string{"System.Diagnostics.Process", "System.Net"},
		FileExtensions: []string{"cs"},
		OutputFlag:     "/out:",
		Launcher:       "mono",
	},
	"java": {
		Compiler:       "javac",
		FileExtensions: []string{"java"},
	},
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// LanguageNames returns the configured language identifiers in sorted order.
func (c Config) LanguageNames() []string {
	names := make([]string, 0, len(c.Languages))
	for name := range c.Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads configuration from the environment, an optional .env file and
// an optional YAML/TOML config file. configFile falls back to JUDGE_CONFIG.
func Load(configFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JUDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "UVA Judge")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("judge.work_directory", filepath.Join(os.TempDir(), "uva-judge"))
	v.SetDefault("judge.problem_directory", "problems")
	v.SetDefault("judge.max_workers", 0)
	v.SetDefault("judge.max_output_kb", 1024)
	v.SetDefault("judge.max_upload_kb", 256)
	v.SetDefault("judge.compile_timeout", "30s")
	v.SetDefault("judge.cache_ttl", "10m")
	v.SetDefault("judge.rate_limit.max", 30)
	v.SetDefault("judge.rate_limit.window", "1m")
	v.SetDefault("nats.subject", "judge.verdicts")
	for name, lang := range defaultLanguages {
		prefix := "languages." + name + "."
		v.SetDefault(prefix+"compiler", lang.Compiler)
		v.SetDefault(prefix+"args", lang.Args)
		v.SetDefault(prefix+"restricted", lang.Restricted)
		v.SetDefault(prefix+"file_extensions", lang.FileExtensions)
		v.SetDefault(prefix+"output_flag", lang.OutputFlag)
		v.SetDefault(prefix+"launcher", lang.Launcher)
	}

	if configFile == "" {
		configFile = v.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	compileTimeout, err := parseDuration(v, "judge.compile_timeout")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "judge.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "judge.rate_limit.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		LogLevel:         strings.ToLower(v.GetString("log.level")),
		WorkDirectory:    v.GetString("judge.work_directory"),
		ProblemDirectory: v.GetString("judge.problem_directory"),
		MaxWorkers:       v.GetInt("judge.max_workers"),
		MaxOutputBytes:   v.GetInt64("judge.max_output_kb") * 1024,
		MaxUploadBytes:   v.GetInt64("judge.max_upload_kb") * 1024,
		CompileTimeout:   compileTimeout,
		CacheTTL:         cacheTTL,
		RateLimitMax:     v.GetInt("judge.rate_limit.max"),
		RateLimitWindow:  rateWindow,
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		NATSSubject:      v.GetString("nats.subject"),
		Languages:        loadLanguages(v),
	}

	if cfg.MaxWorkers < 0 {
		return Config{}, fmt.Errorf("judge.max_workers must not be negative")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 256 * 1024
	}

	return cfg, nil
}

func loadLanguages(v *viper.Viper) map[string]LanguageConfig {
	names := make(map[string]struct{}, len(defaultLanguages))
	for name := range defaultLanguages {
		names[name] = struct{}{}
	}
	for name := range v.GetStringMap("languages") {
		names[strings.ToLower(name)] = struct{}{}
	}

	languages := make(map[string]LanguageConfig, len(names))
	for name := range names {
		prefix := "languages." + name + "."
		lang := LanguageConfig{
			Compiler:       v.GetString(prefix + "compiler"),
			Args:           v.GetStringSlice(prefix + "args"),
			Restricted:     v.GetStringSlice(prefix + "restricted"),
			FileExtensions: normalizeExtensions(v.GetStringSlice(prefix + "file_extensions")),
			OutputFlag:     v.GetString(prefix + "output_flag"),
			Launcher:       v.GetString(prefix + "launcher"),
		}
		if lang.Compiler == "" {
			continue
		}
		languages[name] = lang
	}
	return languages
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// LanguageDefinitions converts the configured toolchains into judge definitions.
func (c Config) LanguageDefinitions() map[string]judge.LanguageDefinition {
	definitions := make(map[string]judge.LanguageDefinition, len(c.Languages))
	for name, lang := range c.Languages {
		definitions[name] = judge.LanguageDefinition{
			Name:       name,
			Path:       lang.Compiler,
			Args:       lang.Args,
			Restricted: lang.Restricted,
			Extensions: lang.FileExtensions,
			OutputFlag: lang.OutputFlag,
			Launcher:   lang.Launcher,
		}
	}
	return definitions
}

// JudgeConfig returns the evaluator settings.
func (c Config) JudgeConfig() judge.Config {
	return judge.Config{
		WorkDirectory:  c.WorkDirectory,
		MaxWorkers:     c.MaxWorkers,
		MaxOutputBytes: c.MaxOutputBytes,
		CompileTimeout: c.CompileTimeout,
	}
}
