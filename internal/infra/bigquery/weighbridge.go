package bigquery

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// FormatValue renders a BigQuery cell the way it would appear in an exported log.
// DATE cells come out year-first, which the day-first parser never swaps.
func FormatValue(v bigquery.Value) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case *big.Rat:
		if val == nil {
			return ""
		}
		return trimRat(val.FloatString(9))
	case civil.Date:
		return val.String()
	case civil.Time:
		return val.String()
	case civil.DateTime:
		return val.Date.String() + " " + val.Time.String()
	case time.Time:
		return val.UTC().Format("2006-01-02 15:04:05")
	case []byte:
		return string(val)
	default:
		return ""
	}
}

// trimRat drops trailing zeros from a fixed-point rendering.
func trimRat(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
