// Package sym defines the symbols verdict uses as log markers and command prefixes.
// These symbols are stable across CLI output and structured logs.
package sym

// Command symbols. Each one fronts a verdict subcommand.
const (
	AM = "≡" // am: configuration and system settings
	IX = "⨳" // ix: partition inputs and upload artifacts
	AX = "⋈" // ax: collect outputs and join them to requests
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // polling cycles, admission, worker pool
	PulseOpen  = "✿" // graceful startup
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // ledger storage
)

// SymbolToCommand maps glyph strings to the subcommand they front.
var SymbolToCommand = map[string]string{
	AM:    "am",
	Pulse: "run",
	AX:    "collect",
	DB:    "status",
}

// CommandToSymbol maps subcommands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"am":      AM,
	"run":     Pulse,
	"collect": AX,
	"status":  DB,
}

// CommandDescriptions provides one-line explanations used in command help.
var CommandDescriptions = map[string]string{
	"am":      "Configuration: show and validate settings",
	"run":     "Pulse: partition, upload, submit and poll on a schedule",
	"collect": "Join: fetch outputs and reassemble datasets",
	"status":  "Ledger: summarize sub-batch states per owner key",
}

// Prefix returns the glyph for a command followed by a space, or "" when unknown.
func Prefix(command string) string {
	if s, ok := CommandToSymbol[command]; ok {
		return s + " "
	}
	return ""
}
