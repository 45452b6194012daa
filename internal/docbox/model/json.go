package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a generic JSON object column, used for edit-history metadata
// and processing configuration payloads.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into JSONMap", src)
	}
	return json.Unmarshal(raw, m)
}
