package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver

	"github.com/mty/chordtokit/midiio"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List selectable MIDI ports",
	Long:  `List the MIDI input and output ports this machine exposes, minus virtual ports.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("inputs:")
		for _, name := range midiio.ListInputs() {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("outputs:")
		for _, name := range midiio.ListOutputs() {
			fmt.Printf("  %s\n", name)
		}
	},
}
