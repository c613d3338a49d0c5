package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/bowerhall/partscout/internal/apperr"
)

// schema is the compiled form of a tool's JSON-schema parameters. It covers
// the subset the tool set uses: flat objects of strings, numbers, booleans
// and string arrays.
type schema struct {
	props    map[string]prop
	required []string
}

type prop struct {
	typ      string
	pattern  *regexp.Regexp
	enum     []string
	min, max *float64
	minItems int
	maxItems int
	items    *prop
}

func compileSchema(params map[string]any) (schema, error) {
	s := schema{props: make(map[string]prop)}
	if params == nil {
		return s, nil
	}

	props, _ := params["properties"].(map[string]any)
	for name, raw := range props {
		def, ok := raw.(map[string]any)
		if !ok {
			return s, fmt.Errorf("property %s: not an object", name)
		}
		p, err := compileProp(def)
		if err != nil {
			return s, fmt.Errorf("property %s: %w", name, err)
		}
		s.props[name] = p
	}

	s.required = stringList(params["required"])
	for _, name := range s.required {
		if _, ok := s.props[name]; !ok {
			return s, fmt.Errorf("required property %s is not declared", name)
		}
	}

	return s, nil
}

func compileProp(def map[string]any) (prop, error) {
	p := prop{typ: fmt.Sprint(def["type"])}

	if pat, ok := def["pattern"].(string); ok {
		re, err := regexp.Compile(pat)
		if err != nil {
			return p, err
		}
		p.pattern = re
	}
	p.enum = stringList(def["enum"])
	p.min = number(def["minimum"])
	p.max = number(def["maximum"])
	if v := number(def["minItems"]); v != nil {
		p.minItems = int(*v)
	}
	if v := number(def["maxItems"]); v != nil {
		p.maxItems = int(*v)
	}

	if items, ok := def["items"].(map[string]any); ok {
		ip, err := compileProp(items)
		if err != nil {
			return p, fmt.Errorf("items: %w", err)
		}
		p.items = &ip
	}

	return p, nil
}

// validate checks raw arguments against the schema. Every violation is an
// InvalidArguments error naming the offending argument.
func (s schema) validate(args json.RawMessage) error {
	args = bytes.TrimSpace(args)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		args = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return apperr.InvalidArguments("arguments must be a JSON object: %v", err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, ok := s.props[name]
		if !ok {
			return apperr.InvalidArguments("unexpected argument %q", name)
		}
		if bytes.Equal(fields[name], []byte("null")) {
			continue
		}
		if err := p.check(fields[name]); err != nil {
			return apperr.InvalidArguments("%s: %v", name, err)
		}
	}

	for _, name := range s.required {
		raw, ok := fields[name]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return apperr.InvalidArguments("missing required argument %q", name)
		}
		var str string
		if json.Unmarshal(raw, &str) == nil && strings.TrimSpace(str) == "" {
			return apperr.InvalidArguments("argument %q must not be empty", name)
		}
	}

	return nil
}

func (p prop) check(raw json.RawMessage) error {
	switch p.typ {
	case "string":
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("expected a string")
		}
		v = strings.TrimSpace(v)
		if p.pattern != nil && v != "" && !p.pattern.MatchString(v) {
			return fmt.Errorf("%q does not match %s", v, p.pattern)
		}
		if len(p.enum) > 0 && v != "" && !contains(p.enum, strings.ToLower(v)) {
			return fmt.Errorf("%q is not one of %s", v, strings.Join(p.enum, ", "))
		}
	case "integer", "number":
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("expected a number")
		}
		if p.typ == "integer" && v != math.Trunc(v) {
			return fmt.Errorf("expected an integer")
		}
		if p.min != nil && v < *p.min {
			return fmt.Errorf("must be at least %v", *p.min)
		}
		if p.max != nil && v > *p.max {
			return fmt.Errorf("must be at most %v", *p.max)
		}
	case "boolean":
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("expected a boolean")
		}
	case "array":
		var v []json.RawMessage
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("expected an array")
		}
		if p.minItems > 0 && len(v) < p.minItems {
			return fmt.Errorf("needs at least %d items", p.minItems)
		}
		if p.maxItems > 0 && len(v) > p.maxItems {
			return fmt.Errorf("allows at most %d items", p.maxItems)
		}
		if p.items != nil {
			for i, item := range v {
				if err := p.items.check(item); err != nil {
					return fmt.Errorf("item %d: %v", i, err)
				}
			}
		}
	}
	return nil
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return nil
}

func number(v any) *float64 {
	var f float64
	switch vv := v.(type) {
	case int:
		f = float64(vv)
	case float64:
		f = vv
	default:
		return nil
	}
	return &f
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
