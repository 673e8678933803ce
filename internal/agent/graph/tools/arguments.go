package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sap-order-agent/server/internal/odata"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

// SanitizeArguments normalizes model-produced tool arguments before the
// typed handler decodes them. It never fails: arguments that are not a JSON
// object are replaced by an empty object so the handler reports what is missing.
func SanitizeArguments(ctx context.Context, name, arguments string) (string, error) {
	if strings.TrimSpace(arguments) == "" {
		return "{}", nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		logx.Warn().Str("tool_name", name).Str("arguments", arguments).Msg("tool arguments are not a JSON object")
		return "{}", nil
	}
	if m == nil {
		return "{}", nil
	}

	for _, key := range []string{"order_id", "order_number"} {
		if v, ok := m[key]; ok {
			m[key] = odata.NormalizeOrderID(coerceString(v))
		}
	}
	for _, key := range []string{"customer_id", "reason", "associations"} {
		if v, ok := m[key]; ok {
			if v == nil {
				delete(m, key)
				continue
			}
			m[key] = strings.TrimSpace(coerceString(v))
		}
	}
	if v, ok := m["limit"]; ok {
		if n, ok := coerceInt(v); ok {
			m["limit"] = clampInt(n, 1, MaxSearchLimit)
		} else {
			delete(m, "limit")
		}
	}
	for _, key := range []string{"min_value", "max_value"} {
		if v, ok := m[key]; ok {
			if f, ok := coerceFloat(v); ok {
				m[key] = f
			} else {
				delete(m, key)
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

// UnknownTool answers hallucinated or malformed tool calls with a compact
// result the model can recover from.
func UnknownTool(ctx context.Context, name, input string) (string, error) {
	logx.Warn().
		Str("tool_name", name).
		Str("arguments", input).
		Msg("Unknown or invalid tool call; returning fallback result")
	return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.NewReplacer(",", "", " ", "").Replace(t)
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
