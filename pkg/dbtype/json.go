// Package dbtype 提供以 JSON 列存储的字段类型
package dbtype

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap 字符串键值对，例如 SKU 规格 {"size":"M","color":"red"}
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *StringMap) Scan(src any) error {
	raw, err := bytesOf(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*m = StringMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Map 任意 JSON 对象
type Map map[string]any

func (m Map) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Map) Scan(src any) error {
	raw, err := bytesOf(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*m = Map{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

func bytesOf(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("dbtype: unsupported scan type %T", src)
	}
}
