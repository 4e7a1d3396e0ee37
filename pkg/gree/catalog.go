package gree

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
)

// Code is a property code as it appears on the wire (e.g. "SetTem").
type Code string

// Property codes understood by Gree units.
const (
	CodePower           Code = "Pow"
	CodeMode            Code = "Mod"
	CodeTargetTemp      Code = "SetTem"
	CodeTempUnit        Code = "TemUn"
	CodeFanSpeed        Code = "WdSpd"
	CodeFreshAir        Code = "Air"
	CodeXFan            Code = "Blo"
	CodeHealth          Code = "Health"
	CodeSleep           Code = "SwhSlp"
	CodeLight           Code = "Lig"
	CodeSwingHorizontal Code = "SwingLfRig"
	CodeSwingVertical   Code = "SwUpDn"
	CodeQuiet           Code = "Quiet"
	CodeTurbo           Code = "Tur"
	CodeSteadyHeat      Code = "StHt"
	CodeHeatCoolType    Code = "HeatCoolType"
	CodeTempRec         Code = "TemRec"
	CodeEnergySaving    Code = "SvSt"
	CodeRoomTemperature Code = "TemSen"
)

// RoomTemperatureShift is added by the unit to TemSen readings.
const RoomTemperatureShift = 40

// Target temperature limits in Celsius.
const (
	MinTargetTemp = 16
	MaxTargetTemp = 30
)

// Mode values.
const (
	ModeAuto = 0
	ModeCool = 1
	ModeDry  = 2
	ModeFan  = 3
	ModeHeat = 4
)

// Fan speed values. MediumLow and MediumHigh are not available on 3-speed units.
const (
	FanAuto       = 0
	FanLow        = 1
	FanMediumLow  = 2
	FanMedium     = 3
	FanMediumHigh = 4
	FanHigh       = 5
)

// Definition describes one catalog entry.
type Definition struct {
	Name        string // human-meaningful name, e.g. "temperature"
	Code        Code
	Description string
	Min, Max    int            // inclusive numeric domain
	Labels      map[string]int // enumerated values, nil for plain ranges
	ReadOnly    bool
}

// Allows reports whether value lies in the declared domain.
func (d Definition) Allows(value int) bool {
	if d.Labels != nil {
		for _, v := range d.Labels {
			if v == value {
				return true
			}
		}
		return false
	}
	return value >= d.Min && value <= d.Max
}

// Label renders value using the enumerated labels when one matches.
func (d Definition) Label(value int) string {
	for l, v := range d.Labels {
		if v == value {
			return l
		}
	}
	return strconv.Itoa(value)
}

// clone returns d with its own copy of Labels.
func (d Definition) clone() Definition {
	d.Labels = maps.Clone(d.Labels)
	return d
}

// LabelNames returns the enumerated labels ordered by value.
func (d Definition) LabelNames() []string {
	names := make([]string, 0, len(d.Labels))
	for l := range d.Labels {
		names = append(names, l)
	}
	sort.Slice(names, func(i, j int) bool { return d.Labels[names[i]] < d.Labels[names[j]] })
	return names
}

func enum(labels ...string) map[string]int {
	m := make(map[string]int, len(labels))
	for i, l := range labels {
		m[l] = i
	}
	return m
}

var onOff = enum("off", "on")

// catalog is the fixed property table. It is never mutated after init.
var catalog = []Definition{
	{Name: "power", Code: CodePower, Description: "power state", Labels: onOff},
	{Name: "mode", Code: CodeMode, Description: "operating mode", Labels: enum("auto", "cool", "dry", "fan", "heat")},
	{Name: "temperature", Code: CodeTargetTemp, Description: "target temperature", Min: MinTargetTemp, Max: MaxTargetTemp},
	{Name: "temp-unit", Code: CodeTempUnit, Description: "temperature unit", Labels: enum("celsius", "fahrenheit")},
	{Name: "fan-speed", Code: CodeFanSpeed, Description: "fan speed", Labels: enum("auto", "low", "medium-low", "medium", "medium-high", "high")},
	{Name: "fresh-air", Code: CodeFreshAir, Description: "fresh air valve", Labels: onOff},
	{Name: "x-fan", Code: CodeXFan, Description: "keep fan running after shutdown (cool and dry only)", Labels: onOff},
	{Name: "health", Code: CodeHealth, Description: "cold plasma mode", Labels: onOff},
	{Name: "sleep", Code: CodeSleep, Description: "sleep mode", Labels: onOff},
	{Name: "light", Code: CodeLight, Description: "display and indicators", Labels: onOff},
	{Name: "swing-horizontal", Code: CodeSwingHorizontal, Description: "horizontal blade position",
		Labels: enum("default", "full", "left", "left-center", "center", "right-center", "right")},
	{Name: "swing-vertical", Code: CodeSwingVertical, Description: "vertical blade position",
		Labels: enum("default", "full", "fixed-top", "fixed-upper", "fixed-middle", "fixed-lower", "fixed-bottom",
			"swing-bottom", "swing-lower", "swing-middle", "swing-upper", "swing-top")},
	{Name: "quiet", Code: CodeQuiet, Description: "quiet mode", Labels: onOff},
	{Name: "turbo", Code: CodeTurbo, Description: "maximum fan speed (cool and dry only)", Labels: onOff},
	{Name: "steady-heat", Code: CodeSteadyHeat, Description: "keep room at 8C", Labels: onOff},
	{Name: "heat-cool-type", Code: CodeHeatCoolType, Description: "unit type", Min: 0, Max: 255, ReadOnly: true},
	{Name: "temp-rec", Code: CodeTempRec, Description: "fahrenheit rounding bit", Min: 0, Max: 1},
	{Name: "energy-saving", Code: CodeEnergySaving, Description: "energy saving mode", Labels: onOff},
	{Name: "room-temperature", Code: CodeRoomTemperature, Description: "room temperature sensor (Celsius + 40)", Min: 0, Max: 255, ReadOnly: true},
}

var (
	byName = make(map[string]*Definition, len(catalog))
	byCode = make(map[Code]*Definition, len(catalog))
)

func init() {
	for i := range catalog {
		d := &catalog[i]
		byName[d.Name] = d
		byCode[d.Code] = d
	}
}

// Definitions returns a copy of the catalog in declaration order.
func Definitions() []Definition {
	out := make([]Definition, len(catalog))
	for i, d := range catalog {
		out[i] = d.clone()
	}
	return out
}

// AllCodes returns every catalog code in declaration order.
func AllCodes() []Code {
	codes := make([]Code, len(catalog))
	for i, d := range catalog {
		codes[i] = d.Code
	}
	return codes
}

// Lookup returns the definition for code.
func Lookup(code Code) (Definition, error) {
	d, ok := byCode[code]
	if !ok {
		return Definition{}, fmt.Errorf("%w: code %q", ErrUnknownProperty, code)
	}
	return d.clone(), nil
}

// CodeFor maps a property name to its wire code. Wire codes are accepted
// as-is so callers may use either form.
func CodeFor(name string) (Code, error) {
	if d, ok := byName[strings.ToLower(name)]; ok {
		return d.Code, nil
	}
	if d, ok := byCode[Code(name)]; ok {
		return d.Code, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProperty, name)
}

// Validate checks that value is acceptable for code. It is purely local.
func Validate(code Code, value int) error {
	d, ok := byCode[code]
	if !ok {
		return fmt.Errorf("%w: code %q", ErrUnknownProperty, code)
	}
	if !d.Allows(value) {
		if d.Labels != nil {
			return fmt.Errorf("%w: %s=%d not one of %s", ErrValidation, code, value, strings.Join(d.LabelNames(), ", "))
		}
		return fmt.Errorf("%w: %s=%d out of range %d-%d", ErrValidation, code, value, d.Min, d.Max)
	}
	return nil
}

// validateWritable is Validate plus the read-only check.
func validateWritable(code Code, value int) error {
	if err := Validate(code, value); err != nil {
		return err
	}
	if byCode[code].ReadOnly {
		return fmt.Errorf("%w: %s is read-only", ErrValidation, code)
	}
	return nil
}

// ParseValue converts text into a value for code. Enumerated labels
// ("cool", "on", "high") and plain integers are accepted.
func ParseValue(code Code, text string) (int, error) {
	d, ok := byCode[code]
	if !ok {
		return 0, fmt.Errorf("%w: code %q", ErrUnknownProperty, code)
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if v, ok := d.Labels[text]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: cannot parse %q", ErrValidation, code, text)
	}
	if err := Validate(code, v); err != nil {
		return 0, err
	}
	return v, nil
}

// Label renders value for display, falling back to the number.
func Label(code Code, value int) string {
	if d, ok := byCode[code]; ok {
		return d.Label(value)
	}
	return strconv.Itoa(value)
}
