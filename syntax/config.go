package syntax

import (
	"strings"

	"github.com/expr-lang/expr"

	"github.com/dpotapov/chtl/diag"
)

// Config is the evaluated form of a [Configuration] block. Setting values may
// be constant expressions ("INDEX_INITIAL_COUNT = 1 + 0;"); they are folded at
// parse time. Unknown keys are diagnostics, not errors.
type Config struct {
	Name     string
	Settings map[string]any
	Groups   map[string]*Config
}

// knownSettings lists the documented option set. Values seed the defaults.
var knownSettings = map[string]any{
	"INDEX_INITIAL_COUNT":          0,
	"DEBUG_MODE":                   false,
	"DISABLE_STYLE_AUTO_ADD_CLASS": false,
	"DISABLE_STYLE_AUTO_ADD_ID":    false,
	"DISABLE_DEFAULT_NAMESPACE":    false,
	"DISABLE_NAME_GROUP":           false,
	"GENERATE_COMMENTS":            true,
	"OUTPUT_MINIFIED":              false,
}

// DefaultConfig returns a configuration with every documented setting at its
// default.
func DefaultConfig() *Config {
	c := &Config{Name: "default", Settings: map[string]any{}, Groups: map[string]*Config{}}
	for k, v := range knownSettings {
		c.Settings[k] = v
	}
	return c
}

// EvalConfiguration folds a KindConfiguration node into a Config. Each
// non-string value is compiled and run as a constant expression; on failure
// the literal text is kept.
func EvalConfiguration(n *Node, sink *diag.Sink) *Config {
	c := DefaultConfig()
	if n == nil {
		return c
	}
	if n.Name != "" {
		c.Name = n.Name
	}
	evalConfigBody(n, c, sink)
	return c
}

func evalConfigBody(n *Node, c *Config, sink *diag.Sink) {
	for _, child := range n.Children {
		switch child.Kind {
		case KindProperty:
			key := child.Name
			if _, known := knownSettings[key]; !known && !strings.HasPrefix(key, "CUSTOM_") && sink != nil {
				sink.Report(diag.Diagnostic{
					Kind:      diag.Parse,
					File:      child.Source.File,
					Line:      child.Source.Span.Line,
					Column:    child.Source.Span.Column,
					Message:   "unknown configuration key " + key,
					Component: "configuration",
				})
			}
			c.Settings[key] = evalSettingValue(child.Value)
		case KindConfiguration:
			g := &Config{Name: child.Name, Settings: map[string]any{}, Groups: map[string]*Config{}}
			evalConfigBody(child, g, sink)
			c.Groups[child.Name] = g
		}
	}
}

// evalSettingValue folds one setting value. Quoted strings stay strings;
// everything else is attempted as a constant expression first.
func evalSettingValue(raw string) any {
	v := strings.TrimSpace(raw)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	prog, err := expr.Compile(v)
	if err != nil {
		return v
	}
	out, err := expr.Run(prog, nil)
	if err != nil {
		return v
	}
	return out
}

// Bool reads a boolean setting with a default.
func (c *Config) Bool(key string) bool {
	if v, ok := c.Settings[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Int reads an integer setting with a default of zero.
func (c *Config) Int(key string) int {
	switch v := c.Settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
