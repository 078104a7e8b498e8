package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/verdict/am"
	"github.com/teranos/verdict/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.Prefix("am") + "Show and validate verdict configuration",
	Long: sym.AM + ` am - Show and validate verdict configuration

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/verdict/am.toml)
3. User config (~/.verdict/am.toml)
4. Project config (am.toml, searched upward from the working directory)
5. Environment variables (VERDICT_* prefix, plus OPENAI_API_KEY)

Examples:
  verdict am show                    # Show current configuration
  verdict am show --format json      # Show configuration in JSON format
  verdict am get batch.workers       # Get specific config value
  verdict am validate                # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration with secrets masked",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, batch.admission_floor)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration files checked, whether they exist,
and which source supplied each setting.`,
	RunE: runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg.Redacted(), configFormat)
}

// writeConfig marshals cfg in the requested format
func writeConfig(w io.Writer, cfg am.Config, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Fprintf(w, "# verdict configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Fprintf(w, "# verdict configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !am.GetViper().IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}
	for _, s := range am.Settings() {
		if s.Key == key {
			fmt.Fprintln(cmd.OutOrStdout(), s.Value)
			return nil
		}
	}
	// Sections are set but have no flat entry
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "! %v\n", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Configuration files (later overrides earlier):")
	for _, path := range am.ConfigPaths() {
		state := "missing"
		if _, err := os.Stat(path); err == nil {
			state = "found"
		}
		fmt.Fprintf(w, "  [%-7s] %s\n", state, path)
	}
	fmt.Fprintf(w, "  [env]     %s_* environment variables\n", am.EnvPrefix)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Settings:")
	for _, s := range am.Settings() {
		fmt.Fprintf(w, "  %-32s %-12s %v\n", s.Key, s.Source, s.Value)
	}
	return nil
}
