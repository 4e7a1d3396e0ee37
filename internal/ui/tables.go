package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/zberg/go-gree/pkg/gree"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return CellStyle
		})
}

// DevicesTable renders discovered devices. bound reports, per MAC, whether
// a session holds a device key; it may be nil.
func DevicesTable(devices []gree.DeviceIdentity, bound func(mac string) bool) string {
	if len(devices) == 0 {
		return Muted("no devices found")
	}
	t := newTable("MAC", "NAME", "ADDRESS", "MODEL", "VERSION", "BOUND")
	for _, d := range devices {
		state := "-"
		if bound != nil && bound(d.MAC) {
			state = "yes"
		}
		t.Row(d.MAC, d.Name, d.Addr.String(), orDash(d.Model), orDash(d.Version), state)
	}
	return t.String()
}

// StatusTable renders a status snapshot with both the raw value and its
// catalog label.
func StatusTable(status gree.PropertySet) string {
	t := newTable("PROPERTY", "CODE", "VALUE", "LABEL")
	for _, s := range status {
		name := string(s.Code)
		if def, err := gree.Lookup(s.Code); err == nil {
			name = def.Name
		}
		t.Row(name, string(s.Code), fmt.Sprint(s.Value), gree.Label(s.Code, s.Value))
	}
	return t.String()
}

// PropertiesTable renders the property catalog.
func PropertiesTable() string {
	t := newTable("PROPERTY", "CODE", "VALUES", "ACCESS", "DESCRIPTION")
	for _, def := range gree.Definitions() {
		access := "rw"
		if def.ReadOnly {
			access = "ro"
		}
		t.Row(def.Name, string(def.Code), domain(def), access, def.Description)
	}
	return t.String()
}

// AliasesTable renders alias to MAC mappings sorted by alias.
func AliasesTable(aliases map[string]string) string {
	if len(aliases) == 0 {
		return Muted("no aliases")
	}
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable("ALIAS", "MAC")
	for _, name := range names {
		t.Row(name, aliases[name])
	}
	return t.String()
}

func domain(def gree.Definition) string {
	if def.Labels != nil {
		return strings.Join(def.LabelNames(), ", ")
	}
	return fmt.Sprintf("%d-%d", def.Min, def.Max)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
