package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB maps a Postgres jsonb column (the input snapshots and the parsed
// model response) onto map[string]any for sqlx / database/sql.
type JSONB map[string]any

// Value marshals the document for the driver. A nil map stores SQL NULL.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan accepts []byte or string; drivers disagree on how they hand jsonb
// back. NULL and empty values scan to a nil map.
func (j *JSONB) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB: expected []byte or string, got %T", value)
	}

	if len(b) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(b, j)
}
