package container

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bbkernel/internal/apperr"
)

// Args are a definition's arguments after reference and parameter resolution.
type Args []any

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// At returns argument i or nil when out of range.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// String returns argument i as a string.
func (a Args) String(i int) (string, error) {
	switch v := a.At(i).(type) {
	case nil:
		return "", argErr(i, "missing")
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Int returns argument i as an int.
func (a Args) Int(i int) (int, error) {
	n, err := ToInt(a.At(i))
	if err != nil {
		return 0, argErr(i, err.Error())
	}
	return n, nil
}

// Bool returns argument i as a bool.
func (a Args) Bool(i int) (bool, error) {
	switch v := a.At(i).(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, argErr(i, err.Error())
		}
		return b, nil
	default:
		return false, argErr(i, fmt.Sprintf("expected bool, got %T", v))
	}
}

// Map returns argument i as a string-keyed map.
func (a Args) Map(i int) (map[string]any, error) {
	m, err := ToMap(a.At(i))
	if err != nil {
		return nil, argErr(i, err.Error())
	}
	return m, nil
}

func argErr(i int, msg string) error {
	return apperr.Newf(apperr.CodeInvalidArgument, "argument %d: %s", i, msg)
}

// ToInt converts the numeric shapes produced by the YAML, TOML, XML and JSON
// decoders to int.
func ToInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// ToMap converts decoder map shapes to map[string]any.
func ToMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[fmt.Sprint(k)] = e
		}
		return out, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, fmt.Errorf("expected map, got %T", v)
	}
}

// resolveArgs replaces references with instances and parameter placeholders
// with values.
func (c *Container) resolveArgs(raw []any, chain []string, rs *RequestScope) (Args, error) {
	out := make(Args, len(raw))
	for i, v := range raw {
		r, err := c.resolveValue(v, chain, rs)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (c *Container) resolveValue(v any, chain []string, rs *RequestScope) (any, error) {
	switch t := v.(type) {
	case string:
		if ref, ok := ParseReference(t); ok {
			inst, err := c.lookup(ref.ID, chain, rs)
			if err != nil {
				if ref.Optional && apperr.CodeOf(err) == apperr.CodeServiceNotFound && !c.Has(ref.ID) {
					return nil, nil
				}
				return nil, err
			}
			return inst, nil
		}
		if strings.HasPrefix(t, "@@") {
			return t[1:], nil
		}
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.compiled {
			// placeholders were expanded by Compile
			return t, nil
		}
		return c.resolveParams(t, map[string]bool{})
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := c.resolveValue(e, chain, rs)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			r, err := c.resolveValue(e, chain, rs)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (c *Container) lookup(id string, chain []string, rs *RequestScope) (any, error) {
	id = strings.ToLower(id)
	if rs != nil {
		return rs.get(id, chain)
	}
	return c.get(id, chain, nil)
}

// resolveParams expands %name% placeholders; callers hold c.mu. A string that
// is exactly one placeholder takes the parameter's value and type; embedded
// placeholders are rendered as strings. "%%" is a literal percent sign.
func (c *Container) resolveParams(v any, resolving map[string]bool) (any, error) {
	switch t := v.(type) {
	case string:
		return c.resolveString(t, resolving)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := c.resolveParams(e, resolving)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			r, err := c.resolveParams(e, resolving)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (c *Container) resolveString(s string, resolving map[string]bool) (any, error) {
	if len(s) > 2 && s[0] == '%' && s[len(s)-1] == '%' && !strings.Contains(s[1:len(s)-1], "%") {
		return c.paramValue(s[1:len(s)-1], resolving)
	}
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], '%')
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		name := s[i+1 : i+1+end]
		val, err := c.paramValue(name, resolving)
		if err != nil {
			return nil, err
		}
		switch val.(type) {
		case []any, map[string]any:
			return nil, apperr.Newf(apperr.CodeInvalidArgument, "parameter %q is not a scalar and cannot be embedded in %q", name, s)
		}
		b.WriteString(fmt.Sprint(val))
		i += end + 1
	}
	return b.String(), nil
}

func (c *Container) paramValue(name string, resolving map[string]bool) (any, error) {
	key := strings.ToLower(name)
	if resolving[key] {
		return nil, apperr.Newf(apperr.CodeCircularReference, "circular parameter reference to %q", name)
	}
	v, ok := c.parameters[key]
	if !ok {
		return nil, apperr.Newf(apperr.CodeParameterNotFound, "parameter %q not found", name)
	}
	resolving[key] = true
	defer delete(resolving, key)
	return c.resolveParams(v, resolving)
}

// sortedKeys returns m's keys in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
