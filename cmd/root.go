package cmd

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"turnmemory/core"
	"turnmemory/factories"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultSettingsPath = "./settings.json"

var (
	settingsPath string
	logLevel     string
	verbose      bool
	version      string = "dev"

	// settings is loaded once per invocation by the root PersistentPreRunE.
	settings factories.SettingsConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "turnmemory",
	Short: "Pair realtime transcripts into conversation turns and store them as memories",
	Long: `turnmemory listens to a browser speech console's realtime events, pairs each
completed user transcription with the assistant transcript that answers it,
and stores every finished exchange in a memory store.

Quick Start:
  turnmemory serve                          # accept consoles on :19304
  turnmemory replay session.jsonl           # feed a recorded session
  turnmemory turns list --persona ada       # show stored turns`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		settings = loaded
		configureLogger(settings.LogLevel)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (.json or .yaml); defaults to $SETTINGS_PATH or ./settings.json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level DEBUG")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadSettings resolves settings in order: SETTINGS_JSON_B64, the settings
// file, environment variables, then command-line flags.
func loadSettings(cmd *cobra.Command) (factories.SettingsConfig, error) {
	if err := godotenv.Load(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		core.GetLogger().With(map[string]interface{}{"error": err}).Warn("failed to load .env.local")
	}

	cfg, err := readSettings(os.Getenv)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.Getenv)

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if verbose {
		cfg.LogLevel = "DEBUG"
	}
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		cfg.ListenAddr = f.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readSettings(getenv func(string) string) (factories.SettingsConfig, error) {
	if b64 := getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return factories.DefaultSettingsConfig(), fmt.Errorf("decode SETTINGS_JSON_B64: %w", err)
		}
		return factories.SettingsConfigFromJSON(data)
	}

	path := settingsPath
	explicit := path != ""
	if !explicit {
		path = getenv("SETTINGS_PATH")
		explicit = path != ""
	}
	if !explicit {
		path = defaultSettingsPath
	}

	cfg, err := factories.SettingsConfigFromFile(path)
	if err != nil {
		// A missing default file just means "use defaults".
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return factories.DefaultSettingsConfig(), nil
		}
		return cfg, err
	}
	return cfg, nil
}

func configureLogger(level string) {
	core.SetLogger(*core.NewConsoleLogger(os.Stdout, level))
}
