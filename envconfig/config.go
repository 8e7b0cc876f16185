// Package envconfig reads engine settings from ADE_ prefixed environment
// variables.
package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	// Set via ADE_DEBUG in the environment
	Debug bool
	// Set via ADE_MAX_BATCH_AREA in the environment; overrides the host's
	// conditioning batch area budget. 0 keeps the host value; "unlimited"
	// disables the budget entirely.
	MaxBatchArea int
	// Set via ADE_DEFAULT_WINDOW in the environment
	DefaultWindow int
	// Set via ADE_DEFAULT_OVERLAP in the environment
	DefaultOverlap int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ADE_DEBUG":           {"ADE_DEBUG", Debug, "Show additional debug information (e.g. ADE_DEBUG=1)"},
		"ADE_MAX_BATCH_AREA":  {"ADE_MAX_BATCH_AREA", MaxBatchArea, "Conditioning batch area budget override (\"unlimited\" to disable)"},
		"ADE_DEFAULT_WINDOW":  {"ADE_DEFAULT_WINDOW", DefaultWindow, "Default context window length (default 16)"},
		"ADE_DEFAULT_OVERLAP": {"ADE_DEFAULT_OVERLAP", DefaultOverlap, "Default context window overlap (default 4)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	// default values
	DefaultWindow = 16
	DefaultOverlap = 4

	LoadConfig()
}

func LoadConfig() {
	if debug := clean("ADE_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if area := clean("ADE_MAX_BATCH_AREA"); area != "" {
		if area == "unlimited" {
			MaxBatchArea = math.MaxInt
		} else if val, err := strconv.Atoi(area); err != nil || val < 0 {
			slog.Error("invalid setting, ignoring", "ADE_MAX_BATCH_AREA", area, "error", err)
		} else {
			MaxBatchArea = val
		}
	}

	if window := clean("ADE_DEFAULT_WINDOW"); window != "" {
		val, err := strconv.Atoi(window)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "ADE_DEFAULT_WINDOW", window, "error", err)
		} else {
			DefaultWindow = val
		}
	}

	if overlap := clean("ADE_DEFAULT_OVERLAP"); overlap != "" {
		val, err := strconv.Atoi(overlap)
		if err != nil || val < 0 {
			slog.Error("invalid setting must not be negative", "ADE_DEFAULT_OVERLAP", overlap, "error", err)
		} else {
			DefaultOverlap = val
		}
	}
}
