package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chordtokit",
	Short: "Chord-driven remapping for the Alesis DDTi trigger module",
	Long: `chordtokit listens to a MIDI keyboard and an Alesis DDTi and keeps the
DDTi's four trigger notes in sync with what you play.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default is the user config dir)")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
