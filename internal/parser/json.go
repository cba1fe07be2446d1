package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexText accepts a string, a number, or an object carrying a name
// ({"Name": ...} or {"FirstName": ..., "LastName": ...}). Anything else
// decodes to the empty string instead of failing the whole document.
type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	*f = ""
	var s string
	if json.Unmarshal(b, &s) == nil {
		*f = flexText(collapse(s))
		return nil
	}
	var n json.Number
	if json.Unmarshal(b, &n) == nil {
		*f = flexText(n.String())
		return nil
	}
	var obj map[string]any
	if json.Unmarshal(b, &obj) == nil && obj != nil {
		if v := lookup(obj, "name", "value", "short"); v != "" {
			*f = flexText(v)
			return nil
		}
		full := strings.TrimSpace(lookup(obj, "firstname") + " " + lookup(obj, "lastname"))
		*f = flexText(full)
	}
	return nil
}

func (f flexText) String() string { return string(f) }

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = 0
	var n json.Number
	if json.Unmarshal(b, &n) == nil {
		if i, err := strconv.Atoi(n.String()); err == nil {
			*f = flexInt(i)
		}
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*f = flexInt(i)
		}
	}
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var v bool
	if json.Unmarshal(b, &v) == nil {
		*f = flexBool(v)
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		v, _ = strconv.ParseBool(strings.TrimSpace(s))
	}
	*f = flexBool(v)
	return nil
}

func lookup(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		for k, v := range obj {
			if !strings.EqualFold(k, key) || v == nil {
				continue
			}
			switch t := v.(type) {
			case string:
				if s := collapse(t); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				return fmt.Sprint(t)
			}
		}
	}
	return ""
}

func firstText(values ...flexText) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// decodeList decodes either a bare array or an object whose key (matched
// case-insensitively) holds the array.
func decodeList[T any](body []byte, key string) ([]T, bool) {
	var list []T
	if err := json.Unmarshal(body, &list); err == nil {
		return list, true
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}
	for k, raw := range envelope {
		if !strings.EqualFold(k, key) {
			continue
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false
		}
		return list, true
	}
	return nil, false
}
