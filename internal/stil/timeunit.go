package stil

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// unitToPs maps a time unit to its size in picoseconds. Values pivot
// through ps so unit math stays exact for the units testers use.
var unitToPs = map[string]float64{
	"ps": 1,
	"ns": 1000,
	"us": 1000000,
	"ms": 1000000000,
	"s":  1000000000000,
}

var timeLiteralRe = regexp.MustCompile(`(?i)^([+-]?\d*\.?\d+(?:[eE][+-]?\d+)?)\s*(ps|ns|us|ms|s)?$`)

// TimeUnitConverter parses timing literals like "100ns", "1.5us" or
// "15ns/3" and converts them between units.
type TimeUnitConverter struct {
	defaultOutputUnit string
}

// NewTimeUnitConverter creates a converter with the given default output
// unit (ns when empty).
func NewTimeUnitConverter(defaultOutputUnit string) *TimeUnitConverter {
	if defaultOutputUnit == "" {
		defaultOutputUnit = "ns"
	}
	return &TimeUnitConverter{defaultOutputUnit: defaultOutputUnit}
}

// ParseTimeString splits a literal like "100ns" into value and unit.
// Division expressions like "15ns/3" divide the left value by the bare
// number on the right. An empty string parses as 0ns; a missing unit
// defaults to ns.
func (c *TimeUnitConverter) ParseTimeString(timeStr string) (float64, string, error) {
	timeStr = strings.TrimSpace(strings.Trim(strings.TrimSpace(timeStr), "'"))
	if timeStr == "" {
		return 0, "ns", nil
	}

	divisor := 1.0
	if idx := strings.Index(timeStr, "/"); idx >= 0 {
		right := strings.TrimSpace(timeStr[idx+1:])
		d, err := strconv.ParseFloat(right, 64)
		if err != nil || d == 0 {
			return 0, "", fmt.Errorf("invalid divisor in time literal %q", timeStr)
		}
		divisor = d
		timeStr = strings.TrimSpace(timeStr[:idx])
	}

	m := timeLiteralRe.FindStringSubmatch(timeStr)
	if m == nil {
		return 0, "", fmt.Errorf("cannot parse time literal %q", timeStr)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", fmt.Errorf("cannot parse time literal %q: %w", timeStr, err)
	}
	unit := strings.ToLower(m[2])
	if unit == "" {
		unit = "ns"
	}
	return value / divisor, unit, nil
}

// ToPs converts a value in the given unit to picoseconds.
func (c *TimeUnitConverter) ToPs(value float64, unit string) (float64, error) {
	factor, ok := unitToPs[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("unsupported time unit %q", unit)
	}
	return value * factor, nil
}

// FromPs converts a picosecond value to the target unit.
func (c *TimeUnitConverter) FromPs(psValue float64, targetUnit string) (float64, error) {
	factor, ok := unitToPs[strings.ToLower(targetUnit)]
	if !ok {
		return 0, fmt.Errorf("unsupported time unit %q", targetUnit)
	}
	return psValue / factor, nil
}

// Convert converts a value between two units.
func (c *TimeUnitConverter) Convert(value float64, fromUnit, toUnit string) (float64, error) {
	ps, err := c.ToPs(value, fromUnit)
	if err != nil {
		return 0, err
	}
	return c.FromPs(ps, toUnit)
}

// ConvertString parses a literal and converts it to the target unit
// (the converter default when toUnit is empty).
func (c *TimeUnitConverter) ConvertString(timeStr, toUnit string) (float64, error) {
	if toUnit == "" {
		toUnit = c.defaultOutputUnit
	}
	value, unit, err := c.ParseTimeString(timeStr)
	if err != nil {
		return 0, err
	}
	return c.Convert(value, unit, toUnit)
}

// ConvertStringToInt parses a literal and converts it to a rounded
// integer in the target unit. Exact halves round to even.
func (c *TimeUnitConverter) ConvertStringToInt(timeStr, toUnit string) (int, error) {
	v, err := c.ConvertString(timeStr, toUnit)
	if err != nil {
		return 0, err
	}
	return int(math.RoundToEven(v)), nil
}
