// Package xjson — единая точка импорта JSON-кодека.
//
// Все пакеты Flowline кодируют документы flow, тела HTTP-ответов
// и результаты выполнения через этот пакет, поэтому кодек меняется в одном месте.
package xjson

import (
	stdjson "encoding/json"
	"io"

	gjson "github.com/goccy/go-json"
)

// RawMessage совместим с encoding/json.RawMessage.
type RawMessage = stdjson.RawMessage

// Marshal кодирует значение в JSON.
func Marshal(v any) ([]byte, error) {
	return gjson.Marshal(v)
}

// MarshalIndent кодирует значение в JSON с отступами.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

// Unmarshal декодирует JSON в значение.
func Unmarshal(data []byte, v any) error {
	return gjson.Unmarshal(data, v)
}

// Valid проверяет, что data — корректный JSON.
func Valid(data []byte) bool {
	return gjson.Valid(data)
}

// NewDecoder создаёт потоковый декодер.
func NewDecoder(r io.Reader) *gjson.Decoder {
	return gjson.NewDecoder(r)
}

// NewEncoder создаёт потоковый энкодер.
func NewEncoder(w io.Writer) *gjson.Encoder {
	return gjson.NewEncoder(w)
}
