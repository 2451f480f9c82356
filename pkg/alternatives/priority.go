package alternatives

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPriority is returned when a priority is not an integer and cannot be parsed as one
	ErrInvalidPriority = errors.New("invalid priority")
)

// ParsePriority converts a registration priority to an int.
//
// Accepted are Go integer types, finite floats (truncated toward zero, since
// JSON decoding yields float64 for every number), json.Number and decimal
// strings with optional sign and surrounding whitespace. Values outside the
// int range are rejected.
func ParsePriority(v any) (int, error) {
	switch p := v.(type) {
	case int:
		return p, nil
	case int8:
		return int(p), nil
	case int16:
		return int(p), nil
	case int32:
		return int(p), nil
	case int64:
		return fromInt64(p, v)
	case uint:
		return fromUint64(uint64(p), v)
	case uint8:
		return int(p), nil
	case uint16:
		return int(p), nil
	case uint32:
		return fromUint64(uint64(p), v)
	case uint64:
		return fromUint64(p, v)
	case float32:
		return fromFloat(float64(p), v)
	case float64:
		return fromFloat(p, v)
	case json.Number:
		return parseString(p.String(), v)
	case string:
		return parseString(p, v)
	case fmt.Stringer:
		return parseString(p.String(), v)
	default:
		return 0, invalid(v)
	}
}

func parseString(s string, original any) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		// json.Number may carry a fractional or exponent form
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil {
			return 0, invalid(original)
		}
		return fromFloat(f, original)
	}
	return fromInt64(n, original)
}

func fromInt64(n int64, original any) (int, error) {
	if n > math.MaxInt || n < math.MinInt {
		return 0, invalid(original)
	}
	return int(n), nil
}

func fromUint64(n uint64, original any) (int, error) {
	if n > math.MaxInt {
		return 0, invalid(original)
	}
	return int(n), nil
}

func fromFloat(f float64, original any) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(original)
	}
	t := math.Trunc(f)
	if t >= float64(math.MaxInt) || t < float64(math.MinInt) {
		return 0, invalid(original)
	}
	return int(t), nil
}

func invalid(v any) error {
	return fmt.Errorf("%w: cannot convert %#v (type %T) to integer", ErrInvalidPriority, v, v)
}
