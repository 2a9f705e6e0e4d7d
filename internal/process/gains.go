package process

import (
	"fmt"
	"strconv"
	"strings"
)

// GainMappingMode controls how the gain_mapping list reaches the engine.
type GainMappingMode string

const (
	// GainMappingFirst forwards gain_mapping[0] verbatim and drops the rest.
	GainMappingFirst GainMappingMode = "first"
	// GainMappingAll encodes every entry as ["ID=dB", "ID=dB"].
	GainMappingAll GainMappingMode = "all"
)

func ParseGainMappingMode(s string) (GainMappingMode, error) {
	switch GainMappingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", GainMappingFirst:
		return GainMappingFirst, nil
	case GainMappingAll:
		return GainMappingAll, nil
	default:
		return "", &UnknownGainModeError{Mode: GainMappingMode(s)}
	}
}

// UnknownGainModeError is a worker misconfiguration; redelivering the job
// to the same worker cannot succeed.
type UnknownGainModeError struct {
	Mode GainMappingMode
}

func (e *UnknownGainModeError) Error() string {
	return fmt.Sprintf("unknown gain mapping mode %q (expected %q or %q)", string(e.Mode), GainMappingFirst, GainMappingAll)
}

// GainMappingError reports an entry the engine's gain parser cannot read.
type GainMappingError struct {
	Index int
	Entry string
	Cause string
}

func (e *GainMappingError) Error() string {
	return fmt.Sprintf("invalid gain_mapping[%d] %q: %s", e.Index, e.Entry, e.Cause)
}

// SelectGainMapping builds the gain-mapping argument for the render call and
// returns how many entries were left out.
func SelectGainMapping(entries []string, mode GainMappingMode) (string, int, error) {
	if len(entries) == 0 {
		return "", 0, nil
	}

	switch mode {
	case GainMappingAll:
		encoded, err := encodeGainMapping(entries)
		if err != nil {
			return "", 0, err
		}
		return encoded, 0, nil
	case GainMappingFirst, "":
		return entries[0], len(entries) - 1, nil
	default:
		return "", 0, &UnknownGainModeError{Mode: mode}
	}
}

func encodeGainMapping(entries []string) (string, error) {
	var b strings.Builder
	b.WriteString("[")
	for i, entry := range entries {
		if err := checkGainEntry(entry); err != nil {
			err.Index = i
			return "", err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(`"`)
		b.WriteString(entry)
		b.WriteString(`"`)
	}
	b.WriteString("]")
	return b.String(), nil
}

func checkGainEntry(entry string) *GainMappingError {
	if strings.ContainsAny(entry, "\"[],") {
		return &GainMappingError{Entry: entry, Cause: "must not contain quotes, brackets or commas"}
	}
	id, gain, ok := strings.Cut(entry, "=")
	if !ok || id == "" {
		return &GainMappingError{Entry: entry, Cause: "expected ELEMENT_ID=GAIN"}
	}
	if _, err := strconv.ParseFloat(gain, 64); err != nil {
		return &GainMappingError{Entry: entry, Cause: "gain is not a number of dB"}
	}
	return nil
}
