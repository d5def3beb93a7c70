package cast

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/perfpipe/pkg/schema"
)

var (
	errNotIntegral = errors.New("not an integral value")
	errNull        = errors.New("null value in non-nullable field")
)

// timestampLayouts are tried in order when text is cast to a timestamp. The
// underscore layout is what the benchmark shell scripts stamp into file names.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02_15-04-05.000",
	"2006-01-02_15-04-05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// convert casts a single non-null cell to typ.
func convert(v any, typ schema.Type) (any, error) {
	switch typ {
	case schema.Int64:
		return toInt(v)
	case schema.Float64:
		return toFloat(v)
	case schema.Text:
		return toText(v)
	case schema.Timestamp:
		return toTimestamp(v)
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnsupportedType, typ)
	}
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return floatToInt(x)
	case string:
		s := strings.TrimSpace(x)

		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i, nil
		}

		// Counters sometimes arrive as "12.0" or "1e6".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil, fmt.Errorf("parsing %q as int64: %w", x, err)
		}

		return floatToInt(f)
	case time.Time:
		return x.UnixMilli(), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

func floatToInt(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: %v", errNotIntegral, f)
	}

	return int64(f), nil
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as float64: %w", x, err)
		}

		return f, nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

func toText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.000"), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

func toTimestamp(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Truncate(time.Millisecond), nil
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case string:
		return parseTimestamp(x)
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing %q as timestamp", s)
}
