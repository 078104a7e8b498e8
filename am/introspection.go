package am

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/verdict/am.toml
	SourceUser        ConfigSource = "user"        // ~/.verdict/am.toml
	SourceProject     ConfigSource = "project"     // am.toml above the working directory
	SourceEnvironment ConfigSource = "environment" // VERDICT_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

// sensitiveKeys are never printed in clear
var sensitiveKeys = map[string]bool{
	"openai.api_key":    true,
	"mirror.secret_key": true,
	"database.dsn":      true,
}

// Settings flattens the effective configuration and tags each key with its source.
// Sensitive values are masked.
func Settings() []SettingInfo {
	v := GetViper()
	var out []SettingInfo
	flattenSettings(v.AllSettings(), "", ConfigSources, &out)
	return out
}

func flattenSettings(settings map[string]interface{}, prefix string, sourceMap map[string]SourceInfo, out *[]SettingInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			flattenSettings(nested, fullKey, sourceMap, out)
			continue
		}

		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			info = si
		}

		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(fullKey, ".", "_"))
		if os.Getenv(envKey) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		if sensitiveKeys[fullKey] {
			if s, ok := value.(string); ok && s != "" {
				value = "********"
			}
		}

		*out = append(*out, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
}
