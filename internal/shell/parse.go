package shell

import (
	"fmt"
	"strings"

	"github.com/zberg/go-gree/pkg/gree"
)

// ParseCodes turns property names or wire codes into codes. No arguments,
// or the single word "all", selects the whole catalog. Arguments may also
// be comma separated.
func ParseCodes(args []string) ([]gree.Code, error) {
	names := splitArgs(args)
	if len(names) == 0 || (len(names) == 1 && strings.EqualFold(names[0], "all")) {
		return gree.AllCodes(), nil
	}
	codes := make([]gree.Code, 0, len(names))
	for _, name := range names {
		code, err := gree.CodeFor(name)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// ParseSettings turns "name=value" arguments into a change set. Values may
// be labels ("cool", "on") or integers.
func ParseSettings(args []string) (gree.PropertySet, error) {
	pairs := splitArgs(args)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no settings given", gree.ErrValidation)
	}
	changes := make(gree.PropertySet, 0, len(pairs))
	for _, pair := range pairs {
		name, text, ok := strings.Cut(pair, "=")
		if !ok || name == "" || text == "" {
			return nil, fmt.Errorf("%w: expected name=value, got %q", gree.ErrValidation, pair)
		}
		code, err := gree.CodeFor(name)
		if err != nil {
			return nil, err
		}
		value, err := gree.ParseValue(code, text)
		if err != nil {
			return nil, err
		}
		changes = append(changes, gree.Setting{Code: code, Value: value})
	}
	return changes, nil
}

func splitArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
