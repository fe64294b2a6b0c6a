// Package models provides the data model for kbarsync.
//
// The single entity is the Kbar: one daily candlestick observation for one
// instrument, identified by the (timestamp, stock code) pair. Source rows
// arrive as loosely typed maps from the BigQuery row iterator and are
// coerced into strongly typed Kbar values before they reach the sink.
package models

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	"kbarsync/pkg/errors"
)

// Column names as they appear in both the source and sink tables.
const (
	ColumnTs        = "ts"
	ColumnStockCode = "stock_code"
	ColumnOpen      = "Open"
	ColumnHigh      = "High"
	ColumnLow       = "Low"
	ColumnClose     = "Close"
	ColumnVolume    = "Volume"
)

// Columns is the fixed projection shared by the source query and the sink
// table, in order.
var Columns = []string{
	ColumnTs, ColumnStockCode,
	ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume,
}

// Kbar is one daily candlestick record for one instrument.
type Kbar struct {
	// Ts is the bar timestamp, normalized to UTC
	Ts time.Time
	// StockCode identifies the instrument
	StockCode string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// TsString renders the timestamp in the canonical form stored in the
// sink: RFC3339 in UTC, fractional seconds kept when present. Keeping
// sub-second precision stops two bars that differ only below the second
// from collapsing into one composite key.
func (k *Kbar) TsString() string {
	return k.Ts.UTC().Format(time.RFC3339Nano)
}

// Key returns the composite identity of the record.
func (k *Kbar) Key() (ts string, stockCode string) {
	return k.TsString(), k.StockCode
}

// FromRow coerces one source row into a Kbar. Every field is converted
// explicitly; an incompatible type is a data error, never a silent
// pass-through.
func FromRow(row map[string]interface{}) (*Kbar, error) {
	ts, err := CoerceTimestamp(row[ColumnTs])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid ts field").WithDetail("column", ColumnTs)
	}

	code, err := CoerceString(row[ColumnStockCode])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid stock_code field").WithDetail("column", ColumnStockCode)
	}

	k := &Kbar{Ts: ts, StockCode: code}

	for _, f := range []struct {
		column string
		dst    *float64
	}{
		{ColumnOpen, &k.Open},
		{ColumnHigh, &k.High},
		{ColumnLow, &k.Low},
		{ColumnClose, &k.Close},
	} {
		v, err := CoerceFloat(row[f.column])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid price field").WithDetail("column", f.column)
		}
		*f.dst = v
	}

	vol, err := CoerceInt64(row[ColumnVolume])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid volume field").WithDetail("column", ColumnVolume)
	}
	k.Volume = vol

	return k, nil
}

// CoerceTimestamp converts a source timestamp value to a UTC time.Time.
// Values that already carry date-time semantics keep their instant; naive
// values (DATETIME, DATE, zone-less strings) are interpreted as UTC so the
// composite key is identical on every run.
func CoerceTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case civil.DateTime:
		return t.In(time.UTC), nil
	case civil.Date:
		return t.In(time.UTC), nil
	case string:
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02",
		} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, errors.New(errors.ErrorTypeData, "unparseable timestamp string").WithDetail("value", t)
	case nil:
		return time.Time{}, errors.New(errors.ErrorTypeData, "timestamp is nil")
	default:
		return time.Time{}, errors.New(errors.ErrorTypeData, "unsupported timestamp type").WithDetail("type", typeName(v))
	}
}

// CoerceString converts a source value to its text form.
func CoerceString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case nil:
		return "", errors.New(errors.ErrorTypeData, "string value is nil")
	default:
		return "", errors.New(errors.ErrorTypeData, "unsupported string type").WithDetail("type", typeName(v))
	}
}

// CoerceFloat converts a source value to float64.
func CoerceFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case *big.Rat:
		if n == nil {
			return 0, errors.New(errors.ErrorTypeData, "numeric value is nil")
		}
		f, _ := n.Float64()
		return f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeData, "unparseable float string").WithDetail("value", n)
		}
		return f, nil
	case nil:
		return 0, errors.New(errors.ErrorTypeData, "float value is nil")
	default:
		return 0, errors.New(errors.ErrorTypeData, "unsupported float type").WithDetail("type", typeName(v))
	}
}

// CoerceInt64 converts a source value to int64.
func CoerceInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case *big.Rat:
		if n == nil {
			return 0, errors.New(errors.ErrorTypeData, "numeric value is nil")
		}
		f, _ := n.Float64()
		return int64(f), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeData, "unparseable integer string").WithDetail("value", n)
		}
		return i, nil
	case nil:
		return 0, errors.New(errors.ErrorTypeData, "integer value is nil")
	default:
		return 0, errors.New(errors.ErrorTypeData, "unsupported integer type").WithDetail("type", typeName(v))
	}
}

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
