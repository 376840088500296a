package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// DecimalSlice stores an ordered list of decimals in a single text column,
// JSON-encoded so the same column type works on SQLite and PostgreSQL.
type DecimalSlice []decimal.Decimal

func (s DecimalSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *DecimalSlice) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Int64Slice stores an ordered list of ids in a single text column.
type Int64Slice []int64

func (s Int64Slice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Int64Slice) Scan(src interface{}) error {
	return scanJSON(src, s)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
