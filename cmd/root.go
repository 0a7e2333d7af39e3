package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/output"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "evident",
	Short: "Deterministic, cited summaries of JSON documents",
	Long: `Evident turns a JSON document into a short list of bullets. Every
bullet cites the JSONPath it was computed from, sensitive values are
redacted before anything is counted, and the same input always yields
the same bullets.

Examples:
  evident summarize payload.json
  evident summarize -e categorical:level -e numeric:latency_ms logs.json
  evident summarize --baseline before.json after.json
  evident summarize --profile logs --stream logs.json
  evident serve --addr :8080`,
	SilenceUsage: true,
}

// Execute is called by main.main(). It runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.evident.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "output format (text, json, table)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto, always, never)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".evident")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("EVIDENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for key, value := range config.DefaultMap() {
		viper.SetDefault(key, value)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig overlays viper's settings on the built-in defaults and
// validates the result.
func loadConfig() (config.Config, error) {
	cfg := config.Defaults()
	if err := viper.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes text logs to w at the configured level.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// newWriter builds the output writer from the global flags.
func newWriter(cmd *cobra.Command) (*output.Writer, error) {
	mode, err := output.ParseColorMode(viper.GetString("color"))
	if err != nil {
		return nil, err
	}
	return output.New(cmd.OutOrStdout(), output.ParseFormat(viper.GetString("format")), mode), nil
}
