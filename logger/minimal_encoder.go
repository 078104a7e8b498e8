package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// palette holds the ANSI sequences for one console theme
type palette struct {
	time    string
	name    string
	key     string
	symbol  string
	warn    string
	warnBg  string
	err     string
	errBg   string
	enabled bool
}

var palettes = map[string]palette{
	// Everforest Dark: natural greens
	"everforest": {
		time:    "\x1b[38;5;107m",
		name:    "\x1b[38;5;208m",
		key:     "\x1b[38;5;109m",
		symbol:  "\x1b[38;5;108m",
		warn:    "\x1b[38;5;179m",
		warnBg:  "\x1b[48;5;58m",
		err:     "\x1b[38;5;167m",
		errBg:   "\x1b[48;5;52m",
		enabled: true,
	},
	// Gruvbox Dark: warm, muted
	"gruvbox": {
		time:    "\x1b[38;5;108m",
		name:    "\x1b[38;5;214m",
		key:     "\x1b[38;5;175m",
		symbol:  "\x1b[38;5;142m",
		warn:    "\x1b[38;5;214m",
		warnBg:  "\x1b[48;5;58m",
		err:     "\x1b[38;5;167m",
		errBg:   "\x1b[48;5;88m",
		enabled: true,
	},
	"plain": {},
}

var currentTheme = "everforest"

var bufferPool = buffer.NewPool()

// SetTheme configures the color scheme for console output.
// Unknown names are ignored.
func SetTheme(theme string) {
	if _, ok := palettes[theme]; ok {
		currentTheme = theme
	}
}

func activePalette() palette {
	if os.Getenv("NO_COLOR") != "" {
		return palettes["plain"]
	}
	return palettes[currentTheme]
}

func (p palette) paint(color, s string) string {
	if !p.enabled || color == "" {
		return s
	}
	return color + s + colorReset
}

// minimalEncoder is a compact console encoder.
// Format: "13:04:35  v.poller  ꩜ Record advanced  owner_key=PETR4 sub_id=3 outcome=completed"
//
// Fields attached with With() are kept in the embedded map encoder and printed
// (sorted) before the per-call fields, which keep their call order.
type minimalEncoder struct {
	*zapcore.MapObjectEncoder
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder()}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return &minimalEncoder{MapObjectEncoder: clone}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	p := activePalette()
	final := bufferPool.Get()

	final.AppendString(p.paint(p.time, ent.Time.Format("15:04:05")))

	if ent.Level != zapcore.InfoLevel && ent.Level != zapcore.DebugLevel {
		final.AppendString("  ")
		final.AppendString(levelString(p, ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(p.paint(p.name, abbreviateName(ent.LoggerName)))
	}

	final.AppendString("  ")

	// Symbol from With() context leads the message
	context := make(map[string]interface{}, len(enc.Fields))
	for k, v := range enc.Fields {
		context[k] = v
	}
	if s, ok := context[FieldSymbol].(string); ok && s != "" {
		final.AppendString(p.paint(p.symbol, s))
		final.AppendString(" ")
		delete(context, FieldSymbol)
	}
	final.AppendString(ent.Message)

	pairs := make([]string, 0, len(context)+len(fields))

	contextKeys := make([]string, 0, len(context))
	for k := range context {
		contextKeys = append(contextKeys, k)
	}
	sort.Strings(contextKeys)
	for _, k := range contextKeys {
		pairs = append(pairs, formatPair(p, k, context[k]))
	}

	call := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(call)
	}
	for _, f := range fields {
		v, ok := call.Fields[f.Key]
		if !ok {
			continue
		}
		pairs = append(pairs, formatPair(p, f.Key, v))
		delete(call.Fields, f.Key)
	}

	if len(pairs) > 0 {
		final.AppendString("  ")
		final.AppendString(strings.Join(pairs, " "))
	}

	if ent.Stack != "" && ent.Level >= zapcore.ErrorLevel {
		final.AppendString("\n")
		final.AppendString(ent.Stack)
	}

	final.AppendString("\n")
	return final, nil
}

func formatPair(p palette, key string, value interface{}) string {
	return p.paint(p.key, key) + "=" + formatValue(value)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Duration:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// levelString renders WARN/ERROR bold with a background
func levelString(p palette, level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return p.paint(colorBold+p.warnBg+p.warn, "WARN")
	default:
		return p.paint(colorBold+p.errBg+p.err, level.CapitalString())
	}
}

// abbreviateName shortens component names: verdict.poller -> v.poller
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}
