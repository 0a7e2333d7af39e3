package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/output"
	"github.com/bimmerbailey/evident/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the available profiles",
	Long: `List the profiles found in the profiles directory.

Examples:
  evident profiles
  evident profiles --profiles-dir ./profiles -f json
  evident profiles validate profiles/*.yaml`,
	Args: cobra.NoArgs,
	RunE: runProfiles,
}

var profilesValidateCmd = &cobra.Command{
	Use:   "validate <file|glob>...",
	Short: "Validate profile files against the schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProfilesValidate,
}

func init() {
	profilesCmd.Flags().String("profiles-dir", "", "directory of profile YAML files (default from config)")
	profilesCmd.AddCommand(profilesValidateCmd)
	rootCmd.AddCommand(profilesCmd)
}

type profileRow struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Extractors  []string `json:"extractors"`
	Source      string   `json:"source"`
}

func runProfiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("profiles-dir")
	if dir == "" {
		dir = cfg.Profiles.Dir
	}

	registry := profile.NewRegistry(dir, newLogger(cfg, cmd.ErrOrStderr()))
	if err := registry.Load(); err != nil {
		return err
	}

	rows := make([]profileRow, 0)
	for _, p := range registry.List() {
		extractors := p.Extractors
		if extractors == nil {
			extractors = []string{}
		}
		rows = append(rows, profileRow{
			ID:          p.ID,
			Version:     p.Version,
			Title:       p.Title,
			Description: p.Description,
			Extractors:  extractors,
			Source:      p.Source,
		})
	}

	switch output.ParseFormat(viper.GetString("format")) {
	case output.FormatJSON:
		return output.New(cmd.OutOrStdout(), output.FormatJSON, output.ColorNever).WriteJSON(rows)
	default:
		if len(rows) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No profiles found in %s\n", dir)
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tVERSION\tTITLE\tEXTRACTORS")
		fmt.Fprintln(tw, "--\t-------\t-----\t----------")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Version, r.Title, strings.Join(r.Extractors, " "))
		}
		return tw.Flush()
	}
}

func runProfilesValidate(cmd *cobra.Command, args []string) error {
	files, err := config.ExpandGlobs(args)
	if err != nil {
		return err
	}

	failed := 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		p, err := profile.Parse(data, file)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", file, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s %s)\n", file, p.ID, p.Version)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d profiles invalid", failed, len(files))
	}
	return nil
}
