package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Masterminds/sprig/v3"
)

type fn func(args []any) (any, error)

// sprigFuncs borrows sprig's string-manipulation primitives rather than
// re-implementing them: the function vocabulary's names (upper, lower,
// trim, contains, hasPrefix, hasSuffix, replace) match sprig's own
// text/template function map one-for-one.
var sprigFuncs = sprig.FuncMap()

func sprigUnary(name string) func(string) string {
	return sprigFuncs[name].(func(string) string)
}

var (
	sprigUpper = sprigUnary("upper")
	sprigLower = sprigUnary("lower")
	sprigTrim  = sprigUnary("trim")
	// sprig's "contains"/"hasPrefix"/"hasSuffix" take (substr, str) so they
	// read naturally in a `{{ str | contains "substr" }}` pipeline; ours
	// pass the subject first, so the wrappers below flip the argument order.
	sprigContains   = sprigFuncs["contains"].(func(string, string) bool)
	sprigHasPrefix  = sprigFuncs["hasPrefix"].(func(string, string) bool)
	sprigHasSuffix  = sprigFuncs["hasSuffix"].(func(string, string) bool)
	sprigReplaceAll = sprigFuncs["replace"].(func(string, string, string) string)
)

var functions = map[string]fn{
	"toJson":       fnToJSON(false),
	"toPrettyJson": fnToJSON(true),
	"quote":        fnQuote(`"`),
	"squote":       fnQuote(`'`),
	"upper":        fnStringUnary(sprigUpper),
	"lower":        fnStringUnary(sprigLower),
	"trim":         fnStringUnary(sprigTrim),
	"replace":      fnReplace,
	"contains":     fnStringBinaryBool(func(s, substr string) bool { return sprigContains(substr, s) }),
	"hasPrefix":    fnStringBinaryBool(func(s, prefix string) bool { return sprigHasPrefix(prefix, s) }),
	"hasSuffix":    fnStringBinaryBool(func(s, suffix string) bool { return sprigHasSuffix(suffix, s) }),
	"default":      fnDefault,
	"empty":        fnEmpty,
	"coalesce":     fnCoalesce,
	"now":          fnNow,
	"index":        fnIndex,
}

func asString(v any) string {
	return toString(v)
}

func fnToJSON(pretty bool) fn {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		v := stripCallables(args[0])
		var b []byte
		var err error
		if pretty {
			b, err = json.MarshalIndent(v, "", "  ")
		} else {
			b, err = json.Marshal(v)
		}
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func fnQuote(q string) fn {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		return q + asString(args[0]) + q, nil
	}
}

func fnStringUnary(f func(string) string) fn {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		return f(asString(args[0])), nil
	}
}

func fnStringBinaryBool(f func(s, substr string) bool) fn {
	return func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expects 2 arguments, got %d", len(args))
		}
		return f(asString(args[0]), asString(args[1])), nil
	}
}

func fnReplace(args []any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("replace expects 3 arguments, got %d", len(args))
	}
	old, newv, s := asString(args[0]), asString(args[1]), asString(args[2])
	return sprigReplaceAll(old, newv, s), nil
}

func fnDefault(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("default expects 2 arguments, got %d", len(args))
	}
	if isEmpty(args[1]) {
		return args[0], nil
	}
	return args[1], nil
}

func fnEmpty(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("empty expects 1 argument, got %d", len(args))
	}
	return isEmpty(args[0]), nil
}

func fnCoalesce(args []any) (any, error) {
	for _, a := range args {
		if !isEmpty(a) {
			return a, nil
		}
	}
	return nil, nil
}

func fnNow(args []any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("now expects 0 arguments, got %d", len(args))
	}
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), nil
}

func fnIndex(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("index expects 2 arguments, got %d", len(args))
	}
	if args[0] == nil {
		return nil, nil
	}
	switch coll := args[0].(type) {
	case map[string]any:
		return coll[asString(args[1])], nil
	case []any:
		idx, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(coll) {
			return nil, nil
		}
		return coll[idx], nil
	default:
		return nil, fmt.Errorf("index: unsupported collection type %T", args[0])
	}
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		n, err := strconv.Atoi(t)
		return n, err
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
