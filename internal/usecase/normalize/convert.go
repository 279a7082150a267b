package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ISODate is the layout every normalized date is rendered in.
const ISODate = "2006-01-02"

// Converter coerces a raw value into its canonical type.
// A returned error makes the field missing.
type Converter func(v any) (any, error)

// Chain applies converters left to right.
func Chain(convs ...Converter) Converter {
	return func(v any) (any, error) {
		var err error
		for _, c := range convs {
			if v, err = c(v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

// Float coerces numbers and numeric strings to float64.
// Thousands separators and surrounding spaces are tolerated.
func Float() Converter {
	return func(v any) (any, error) { return toFloat(v) }
}

// Integer coerces to int64, rounding half away from zero. Values outside
// the int64 range are rejected.
func Integer() Converter {
	return func(v any) (any, error) {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		r := math.Round(f)
		// -2^63 is exact in float64; 2^63 is the first value past MaxInt64.
		if r < math.MinInt64 || r >= -math.MinInt64 {
			return nil, fmt.Errorf("out of integer range: %v", v)
		}
		return int64(r), nil
	}
}

// Round coerces to float64 rounded to the given number of decimal places.
func Round(places int) Converter {
	return func(v any) (any, error) {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return roundTo(f, places), nil
	}
}

// Scale multiplies a numeric value by factor.
func Scale(factor float64) Converter {
	return func(v any) (any, error) {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return f * factor, nil
	}
}

// KelvinToCelsius subtracts 273.15 and rounds to 2 decimals.
func KelvinToCelsius() Converter {
	return func(v any) (any, error) {
		k, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if k < 0 {
			return nil, fmt.Errorf("negative kelvin %v", k)
		}
		return roundTo(k-273.15, 2), nil
	}
}

// Text coerces scalars to a trimmed string.
func Text() Converter {
	return func(v any) (any, error) {
		switch s := v.(type) {
		case string:
			return strings.TrimSpace(s), nil
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), nil
		case json.Number:
			return s.String(), nil
		case bool, int, int64:
			return fmt.Sprint(s), nil
		}
		return nil, fmt.Errorf("not a scalar: %T", v)
	}
}

// Capitalize upper-cases the first letter and lower-cases the rest.
func Capitalize() Converter {
	return Chain(Text(), func(v any) (any, error) {
		s := v.(string)
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError {
			return s, nil
		}
		return string(unicode.ToUpper(r)) + strings.ToLower(s[size:]), nil
	})
}

// Date parses a string under the first matching layout and renders it as ISODate.
func Date(layouts ...string) Converter {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("date is %T, not string", v)
		}
		t, err := ParseDate(s, layouts...)
		if err != nil {
			return nil, err
		}
		return t.Format(ISODate), nil
	}
}

// ParseDate parses s under the first matching layout.
func ParseDate(s string, layouts ...string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q matches none of %v", s, layouts)
}

func toFloat(v any) (float64, error) {
	f, err := rawFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %v", v)
	}
	return f, nil
}

func rawFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("not numeric: %T", v)
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
