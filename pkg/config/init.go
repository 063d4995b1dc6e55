package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoStore Configuration File
#
# Every value can be overridden from the environment with the DITTOSTORE_
# prefix, for example DITTOSTORE_LOGGING_LEVEL=DEBUG or
# DITTOSTORE_OBJECT_STORE_TYPE=s3.
#
# Durations use Go syntax ("30s", "1h"). Sizes accept units ("100MB").

`

// InitConfig writes a configuration file populated with the defaults.
//
// Parameters:
//   - path: Destination file (empty string uses the default location)
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists and force is false, or on I/O failure
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := generateYAML(GetDefaultConfig())
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// generateYAML renders cfg with the header comment.
func generateYAML(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	durationsAsStrings(&doc, reflect.ValueOf(cfg).Elem())

	var sb strings.Builder
	sb.WriteString(configHeader)

	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return []byte(sb.String()), nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationsAsStrings rewrites the nodes of time.Duration fields, which
// yaml.v3 emits as nanosecond integers, into "1h0m0s" strings.
func durationsAsStrings(node *yaml.Node, v reflect.Value) {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode || v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}

		value := mappingValue(node, name)
		if value == nil {
			continue
		}

		switch {
		case field.Type == durationType:
			value.Kind = yaml.ScalarNode
			value.Tag = "!!str"
			value.Style = 0
			value.Value = time.Duration(v.Field(i).Int()).String()
		case field.Type.Kind() == reflect.Struct:
			durationsAsStrings(value, v.Field(i))
		}
	}
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
