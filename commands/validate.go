package commands

import (
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/questboard/config"
	"github.com/kasuganosora/questboard/resource"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check quest packs without starting the server",
	Long: `Validate loads every .yaml, .yml and .json quest pack in dir and reports
unreadable files, invalid quests and duplicate ids. Without an argument the
quest.content_dir of the config file (or the default) is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			cfg = config.Default()
		}
		dir = cfg.Quest.ContentDir
	}

	report, err := resource.ValidateQuestDir(dir)
	if err != nil {
		return fmt.Errorf("validate %s: %w", dir, err)
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !report.OK() {
		return fmt.Errorf("%d problem(s) in %s", len(report.Problems), dir)
	}
	return nil
}
