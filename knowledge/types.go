package knowledge

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSlice stores a []string as a jsonb column.
type StringSlice []string

// Value implements driver.Valuer.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner.
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("knowledge: cannot scan %T into StringSlice", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// FloatSlice stores a []float64 embedding vector as a jsonb column.
type FloatSlice []float64

// Value implements driver.Valuer.
func (f FloatSlice) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	return json.Marshal([]float64(f))
}

// Scan implements sql.Scanner.
func (f *FloatSlice) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("knowledge: cannot scan %T into FloatSlice", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, f)
}
