package tool

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// rawFields is a decoded argument object with values left undecoded so each
// field can be coerced on its own terms.
type rawFields map[string]json.RawMessage

func decodeFields(raw json.RawMessage) (rawFields, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return rawFields{}, nil
	}
	var f rawFields
	if err := json.Unmarshal([]byte(trimmed), &f); err != nil {
		return nil, err
	}
	if f == nil {
		f = rawFields{}
	}
	return f, nil
}

// str returns the trimmed string value of key. Numbers are rendered as text;
// anything else is absent.
func (f rawFields) str(key string) string {
	v, ok := f[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// float returns the finite numeric value of key, accepting JSON numbers and
// numeric strings. NaN, infinities, empty strings and junk are absent.
func (f rawFields) float(key string) (float64, bool) {
	v, ok := f[key]
	if !ok || strings.TrimSpace(string(v)) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		if s == "" {
			return 0, false
		}
		n, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// floatPtr is float as an optional value.
func (f rawFields) floatPtr(key string) *float64 {
	n, ok := f.float(key)
	if !ok {
		return nil
	}
	return &n
}

// id returns a positive integer identifier. Integer literals are parsed
// exactly; other forms ("12.0", "1e3") go through float. Fractions,
// non-positive and out-of-range values are absent.
func (f rawFields) id(key string) (int64, bool) {
	if v, ok := f[key]; ok {
		var lit string
		if err := json.Unmarshal(v, &lit); err != nil {
			lit = string(v)
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(lit), 10, 64); err == nil {
			if n < 1 {
				return 0, false
			}
			return n, true
		}
	}
	n, ok := f.float(key)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if !ok || n < 1 || n != math.Trunc(n) || n >= math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func (f rawFields) idPtr(key string) *int64 {
	n, ok := f.id(key)
	if !ok {
		return nil
	}
	return &n
}

// count returns a positive integer clamped to max, or nil when absent.
func (f rawFields) count(key string, max int) *int {
	n, ok := f.float(key)
	if !ok || n < 1 {
		return nil
	}
	c := int(math.Min(math.Trunc(n), float64(max)))
	return &c
}
