package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "questboard",
	Short: "Quest bulletin board server",
	Long: `questboard serves class-restricted quest boards, tracks the tickets
players take from them and grants rewards on turn-in.

Static quests come from YAML or JSON packs; generated quests are pulled
from an external generator service and accumulated per class.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. It is called once by main.main.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "error:", err)
		return err
	}
	return nil
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/config.yaml", "path to the YAML config file")
}
