package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

func DefaultConfigPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("获取可执行文件路径失败: %w", err)
	}
	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, "config", "config.yaml"), nil
}

// WriteSkeleton 首次启动时写出配置骨架，密钥留空等运维填写
func WriteSkeleton(path string) error {
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      "eco-signal",
			"version":   "0.1.0",
			"log_level": "info",
			"test_mode": false,
		},
		"server": map[string]any{
			"listen_addr":    "0.0.0.0:5000",
			"admin_password": "${ECO_ADMIN_PASSWORD}",
			"on_demand":      false,
		},
		"notion": map[string]any{
			"api_key":     "${ECO_NOTION_API_KEY}",
			"database_id": "",
			"base_url":    "https://api.notion.com",
			"page_size":   20,
		},
		"vision": map[string]any{
			"credentials_file": "",
			"max_labels":       10,
		},
		"poll": map[string]any{
			"check_interval_sec":   10,
			"pending_timeout_sec":  300,
			"bootstrap_page_limit": 100,
		},
		"signal": map[string]any{
			"base_points":        100,
			"green_threshold":    150,
			"yellow_threshold":   120,
			"bonus_duration_sec": 3600,
			"ranking_timezone":   "Asia/Seoul",
			"point_policy": []map[string]any{
				{"label": "tumbler", "points": 20},
				{"label": "cup", "points": 20},
				{"label": "stairs", "points": 30},
				{"label": "paper", "points": 15},
				{"label": "thermos", "points": 25},
			},
		},
		"storage": map[string]any{
			"db_path": "./data/history.db",
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
