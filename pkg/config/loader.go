package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig 分层加载配置：base.yaml <- <env>.yaml，再用 secrets.env 和进程环境变量替换 ${VAR}
// 进程环境变量优先于 secrets.env；两边都没有的占位符原样保留
func LoadConfig(env string, configDir string) (map[string]interface{}, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := loadYAMLFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		layer, err := loadOptionalYAML(filepath.Join(configDir, env+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
		}
		merged = mergeMaps(merged, layer)
	}

	secrets, err := loadOptionalEnvFile(filepath.Join(configDir, "secrets.env"))
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets.env: %w", err)
	}

	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := secrets[name]
		return v, ok
	}
	return substituteEnvVars(merged, lookup), nil
}

func loadYAMLFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return config, nil
}

func loadOptionalYAML(path string) (map[string]interface{}, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	return loadYAMLFile(path)
}

func loadOptionalEnvFile(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	return godotenv.Read(path)
}

// mergeMaps 返回新 map，src 覆盖 dst，嵌套 map 递归合并，入参不被修改
func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		result[k] = v
	}
	for k, v := range src {
		dstMap, dstOK := result[k].(map[string]interface{})
		srcMap, srcOK := v.(map[string]interface{})
		if dstOK && srcOK {
			result[k] = mergeMaps(dstMap, srcMap)
			continue
		}
		result[k] = v
	}
	return result
}

func substituteEnvVars(config map[string]interface{}, lookup func(string) (string, bool)) map[string]interface{} {
	result := make(map[string]interface{}, len(config))
	for k, v := range config {
		switch val := v.(type) {
		case string:
			result[k] = substituteString(val, lookup)
		case map[string]interface{}:
			result[k] = substituteEnvVars(val, lookup)
		default:
			result[k] = v
		}
	}
	return result
}

func substituteString(s string, lookup func(string) (string, bool)) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := lookup(name); ok {
			return v
		}
		return m
	})
}

// Unresolved 列出配置中仍未替换的 ${VAR}，启动时用于提示缺失的密钥
func Unresolved(config map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var walk func(map[string]interface{})
	walk = func(m map[string]interface{}) {
		for _, v := range m {
			switch val := v.(type) {
			case string:
				for _, sub := range placeholderRe.FindAllStringSubmatch(val, -1) {
					seen[sub[1]] = struct{}{}
				}
			case map[string]interface{}:
				walk(val)
			}
		}
	}
	walk(config)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv CONFIG_ENV 决定叠加哪个环境文件，默认 local
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
