package sandbox

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Output-size ceilings (defaults), spec §6.
const (
	DefaultMaxArrayItemsInternal = 5
	DefaultMaxArrayItemsExecute  = 10
	DefaultMaxArrayItemsList     = 20
	DefaultMaxStringLength       = 500
	DefaultMaxResponseChars      = 25000
)

// SummaryLimits controls Summarize's truncation behavior.
type SummaryLimits struct {
	MaxItems         int
	MaxStringLength  int
	MaxResponseChars int
}

// DefaultExecuteLimits are the ceilings applied to an execute() result.
func DefaultExecuteLimits() SummaryLimits {
	return SummaryLimits{
		MaxItems:         DefaultMaxArrayItemsExecute,
		MaxStringLength:  DefaultMaxStringLength,
		MaxResponseChars: DefaultMaxResponseChars,
	}
}

// DefaultListLimits are the ceilings applied to list()/search() results.
func DefaultListLimits() SummaryLimits {
	return SummaryLimits{
		MaxItems:         DefaultMaxArrayItemsList,
		MaxStringLength:  DefaultMaxStringLength,
		MaxResponseChars: DefaultMaxResponseChars,
	}
}

// Summarize applies spec §4.6 step 7's bounded-recursion rules to value:
// arrays truncated at limits.MaxItems per level with a trailing omitted-count
// marker, strings truncated at limits.MaxStringLength with a suffix marker,
// and a final global character-ceiling pass over the whole JSON rendering.
// Returns the (possibly truncated) value and whether any truncation occurred.
func Summarize(value any, limits SummaryLimits) (any, bool) {
	if limits.MaxItems <= 0 {
		limits.MaxItems = DefaultMaxArrayItemsExecute
	}
	if limits.MaxStringLength <= 0 {
		limits.MaxStringLength = DefaultMaxStringLength
	}
	if limits.MaxResponseChars <= 0 {
		limits.MaxResponseChars = DefaultMaxResponseChars
	}

	truncated := false
	out := summarizeValue(value, limits, &truncated)
	out, capped := enforceGlobalCeiling(out, limits.MaxResponseChars)
	return out, truncated || capped
}

func summarizeValue(value any, limits SummaryLimits, truncated *bool) any {
	switch v := value.(type) {
	case string:
		if len(v) > limits.MaxStringLength {
			*truncated = true
			marker := fmt.Sprintf("...(+%d chars)", len(v)-limits.MaxStringLength)
			cut := limits.MaxStringLength - len(marker)
			if cut < 0 {
				cut = 0
			}
			// Back off to the nearest rune boundary so a multi-byte
			// character never gets split in half.
			for cut > 0 && !utf8.RuneStart(v[cut]) {
				cut--
			}
			// Truncated to fit the marker inside MaxStringLength total, so
			// summarize(summarize(v)) leaves this string (already at or
			// under the limit) unchanged on a second pass.
			return v[:cut] + marker
		}
		return v
	case []any:
		n := len(v)
		if n > limits.MaxItems {
			*truncated = true
			// Reserve one slot for the marker element so the output is
			// exactly MaxItems long, not MaxItems+1 — a second Summarize
			// pass then sees len(v) == limits.MaxItems and leaves it be.
			n = limits.MaxItems - 1
			if n < 0 {
				n = 0
			}
		}
		out := make([]any, 0, n+1)
		for i := 0; i < n; i++ {
			out = append(out, summarizeValue(v[i], limits, truncated))
		}
		if n < len(v) {
			out = append(out, fmt.Sprintf("...(+%d items omitted)", len(v)-n))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = summarizeValue(item, limits, truncated)
		}
		return out
	default:
		return v
	}
}

// enforceGlobalCeiling applies spec §4.6's final pass: a global output
// character ceiling over the whole JSON rendering, appending a truncation
// notice rather than producing invalid JSON when the ceiling is exceeded.
func enforceGlobalCeiling(value any, maxChars int) (any, bool) {
	encoded, err := json.Marshal(value)
	if err != nil || len(encoded) <= maxChars {
		return value, false
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(encoded[cut]) {
		cut--
	}
	return map[string]any{
		"truncated_notice": fmt.Sprintf("output exceeded %d characters and was truncated", maxChars),
		"preview":          string(encoded[:cut]),
	}, true
}
