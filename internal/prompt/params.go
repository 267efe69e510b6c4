package prompt

import (
	"regexp"
	"strconv"
	"strings"
)

// Inline parameter defaults and bounds. These are part of the user-facing
// contract: `--quality <n>` and `--creativity <n>` anywhere in a prompt.
const (
	DefaultQuality    = 3.0
	MinQuality        = 1.0
	MaxQuality        = 5.0
	DefaultCreativity = 0.6
	MinCreativity     = 0.1
	MaxCreativity     = 1.0
)

var (
	qualityPattern    = regexp.MustCompile(`--quality\s+(\d+(?:\.\d+)?)`)
	creativityPattern = regexp.MustCompile(`--creativity\s+(\d+(?:\.\d+)?)`)
)

// Params are the bounded control parameters extracted from a prompt.
type Params struct {
	Quality    float64
	Creativity float64
}

// ParseParams extracts `--quality` and `--creativity` tokens from raw prompt
// text, first match wins per parameter. Matched tokens are stripped and the
// remaining text is whitespace-normalized. Missing or malformed values fall
// back to defaults; out-of-range values are clamped. Unrecognized --flags
// are left in place. Never fails.
func ParseParams(rawText string) (string, Params) {
	cleaned := rawText
	params := Params{
		Quality:    DefaultQuality,
		Creativity: DefaultCreativity,
	}

	if m := qualityPattern.FindStringSubmatch(cleaned); m != nil {
		if parsed, err := strconv.ParseFloat(m[1], 64); err == nil {
			params.Quality = clamp(parsed, MinQuality, MaxQuality)
		}
		cleaned = strings.Replace(cleaned, m[0], "", 1)
	}

	if m := creativityPattern.FindStringSubmatch(cleaned); m != nil {
		if parsed, err := strconv.ParseFloat(m[1], 64); err == nil {
			params.Creativity = clamp(parsed, MinCreativity, MaxCreativity)
		}
		cleaned = strings.Replace(cleaned, m[0], "", 1)
	}

	return strings.Join(strings.Fields(cleaned), " "), params
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
