package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Notion  NotionConfig  `mapstructure:"notion"`
	Vision  VisionConfig  `mapstructure:"vision"`
	Poll    PollConfig    `mapstructure:"poll"`
	Signal  SignalConfig  `mapstructure:"signal"`
	Storage StorageConfig `mapstructure:"storage"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	TestMode bool   `mapstructure:"test_mode"` // 测试模式：奖励窗口缩短为 60 秒
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	AdminPassword string `mapstructure:"admin_password"` // 管理触发口令，必填
	OnDemand      bool   `mapstructure:"on_demand"`      // 按需模式：不起后台线程，由请求同步驱动轮询
}

// NotionConfig Notion 数据源配置
type NotionConfig struct {
	APIKey     string `mapstructure:"api_key"`
	DatabaseID string `mapstructure:"database_id"`
	BaseURL    string `mapstructure:"base_url"`
	PageSize   int    `mapstructure:"page_size"`
}

// VisionConfig Google Vision 配置
type VisionConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"` // 为空时走 GOOGLE_APPLICATION_CREDENTIALS
	MaxLabels       int    `mapstructure:"max_labels"`
}

// PollConfig 轮询配置
type PollConfig struct {
	CheckIntervalSec   int `mapstructure:"check_interval_sec"`
	PendingTimeoutSec  int `mapstructure:"pending_timeout_sec"`
	BootstrapPageLimit int `mapstructure:"bootstrap_page_limit"` // 启动时标记为已处理的存量页面上限
}

// SignalConfig 信号灯与积分策略配置
type SignalConfig struct {
	BasePoints       int           `mapstructure:"base_points"`
	GreenThreshold   int           `mapstructure:"green_threshold"`
	YellowThreshold  int           `mapstructure:"yellow_threshold"`
	BonusDurationSec int           `mapstructure:"bonus_duration_sec"`
	RankingTimezone  string        `mapstructure:"ranking_timezone"`
	PointPolicy      []PolicyEntry `mapstructure:"point_policy"`
}

// PolicyEntry 积分策略条目
// 有序列表：平分时先声明的类别优先，顺序就是语义的一部分。
type PolicyEntry struct {
	Label  string `mapstructure:"label"`
	Points int    `mapstructure:"points"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 支持环境变量：ECO_NOTION_API_KEY 等
	v.SetEnvPrefix("ECO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("配置文件未找到，使用默认配置与环境变量")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 处理环境变量占位符
	cfg.Notion.APIKey = expandEnv(cfg.Notion.APIKey)
	cfg.Server.AdminPassword = expandEnv(cfg.Server.AdminPassword)
	cfg.Vision.CredentialsFile = expandEnv(cfg.Vision.CredentialsFile)

	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)

	// 测试模式：奖励窗口缩短，便于肉眼观察衰减
	if cfg.App.TestMode {
		cfg.Signal.BonusDurationSec = 60
		slog.Warn("### 测试模式运行中，奖励窗口 60 秒 ###")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验必填项；缺少密钥时启动必须失败，绝不带残缺配置运行
func (c *Config) Validate() error {
	var missing []string
	if c.Notion.APIKey == "" {
		missing = append(missing, "notion.api_key")
	}
	if c.Notion.DatabaseID == "" {
		missing = append(missing, "notion.database_id")
	}
	if c.Server.AdminPassword == "" {
		missing = append(missing, "server.admin_password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("必填配置缺失: %s", strings.Join(missing, ", "))
	}
	if c.Signal.GreenThreshold <= c.Signal.YellowThreshold || c.Signal.YellowThreshold <= c.Signal.BasePoints {
		return fmt.Errorf("信号阈值必须严格递增: green(%d) > yellow(%d) > base(%d)",
			c.Signal.GreenThreshold, c.Signal.YellowThreshold, c.Signal.BasePoints)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "eco-signal")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.test_mode", false)

	// Server
	v.SetDefault("server.listen_addr", "0.0.0.0:5000")
	v.SetDefault("server.on_demand", false)

	// Notion
	v.SetDefault("notion.base_url", "https://api.notion.com")
	v.SetDefault("notion.page_size", 20)

	// Vision
	v.SetDefault("vision.max_labels", 10)

	// Poll
	v.SetDefault("poll.check_interval_sec", 10)
	v.SetDefault("poll.pending_timeout_sec", 300)
	v.SetDefault("poll.bootstrap_page_limit", 100)

	// Signal
	v.SetDefault("signal.base_points", 100)
	v.SetDefault("signal.green_threshold", 150)
	v.SetDefault("signal.yellow_threshold", 120)
	v.SetDefault("signal.bonus_duration_sec", 3600)
	v.SetDefault("signal.ranking_timezone", "Asia/Seoul")
	v.SetDefault("signal.point_policy", defaultPointPolicy())

	// Storage
	v.SetDefault("storage.db_path", "./data/history.db")
}

// defaultPointPolicy 默认积分策略
// 顺序即平分裁决顺序，调整需谨慎。
func defaultPointPolicy() []map[string]any {
	return []map[string]any{
		{"label": "tumbler", "points": 20},
		{"label": "cup", "points": 20},
		{"label": "stairs", "points": 30},
		{"label": "paper", "points": 15},
		{"label": "thermos", "points": 25},
	}
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径为绝对路径
func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	exe, err := os.Executable()
	if err != nil {
		return path
	}

	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, path)
}

// SetupLogger 根据配置设置日志级别
func SetupLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
