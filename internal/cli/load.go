package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/xjson"
)

// ReadDocument читает JSON- или YAML-документ и возвращает его в JSON.
//
// Формат определяется расширением: .yaml/.yml — YAML, иначе JSON.
// Путь "-" читает stdin (JSON или YAML, определяется содержимым).
func ReadDocument(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if !isYAML(path, data) {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	out, err := xjson.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, fmt.Errorf("convert %s to json: %w", path, err)
	}
	return out, nil
}

// LoadFlow загружает документ flow из файла.
func LoadFlow(path string, stdin io.Reader) (*domain.Flow, xjson.RawMessage, error) {
	data, err := ReadDocument(path, stdin)
	if err != nil {
		return nil, nil, err
	}
	flow, err := domain.ParseFlow(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse flow %s: %w", path, err)
	}
	return flow, data, nil
}

// LoadUpstream загружает снимок upstream-результатов для test-node.
func LoadUpstream(path string, stdin io.Reader) (map[string]any, error) {
	data, err := ReadDocument(path, stdin)
	if err != nil {
		return nil, err
	}
	var upstream map[string]any
	if err := xjson.Unmarshal(data, &upstream); err != nil {
		return nil, fmt.Errorf("parse upstream %s: %w", path, err)
	}
	return upstream, nil
}

// ParseVars разбирает флаги KEY=VALUE.
// Значение, являющееся JSON (число, объект, true), декодируется,
// иначе остаётся строкой.
func ParseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	vars := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable format %q, expected KEY=VALUE", kv)
		}

		var value any = raw
		if xjson.Valid([]byte(raw)) {
			var decoded any
			if err := xjson.Unmarshal([]byte(raw), &decoded); err == nil {
				value = decoded
			}
		}
		vars[key] = value
	}
	return vars, nil
}

func isYAML(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	return !xjson.Valid(data)
}

// normalizeYAML приводит map[any]any к map[string]any.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
