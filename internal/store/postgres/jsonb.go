package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB adapts an arbitrary Go value to a Postgres jsonb column via
// database/sql's Valuer/Scanner, the way sqlx-based stores in the example
// pack marshal dynamic columns.
type JSONB[T any] struct {
	Value T
}

func NewJSONB[T any](v T) JSONB[T] { return JSONB[T]{Value: v} }

func (j JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Value)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (j *JSONB[T]) Scan(src any) error {
	if src == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan source %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &j.Value)
}
