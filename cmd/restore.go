package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mty/chordtokit/config"
	"github.com/mty/chordtokit/ddti"
	"github.com/mty/chordtokit/dumpfile"
	"github.com/mty/chordtokit/midiio"
)

func init() {
	rootCmd.AddCommand(restoreCmd)
}

var restoreCmd = &cobra.Command{
	Use:   "restore <dumpfile>",
	Short: "Retransmit a saved kit dump to the hardware",
	Long:  `Read a dump file saved by "dump" and send it back to the module verbatim.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return restoreDump(args[0])
	},
}

func restoreDump(path string) error {
	frames, err := dumpfile.Read(path)
	if err != nil {
		return err
	}

	// Validate before touching the hardware.
	codec := ddti.New()
	for _, f := range frames {
		if err := codec.IngestFrame(f); err != nil {
			return err
		}
	}
	snap, err := codec.Snapshot()
	if err != nil {
		return err
	}

	cfg := config.Load(configPath)
	adapter, err := midiio.New(midiio.Config{
		KeyboardSubstr: cfg.GetString("midi_in_substr"),
		DDTiInSubstr:   cfg.GetString("ddti_in_substr"),
		OutSubstr:      cfg.GetString("midi_out_substr"),
	})
	if err != nil {
		return err
	}
	defer adapter.Close()

	if err := adapter.Send(ddti.FrameDump(snap)); err != nil {
		return err
	}
	fmt.Printf("kit dump from %s retransmitted (%d bytes)\n", path, len(snap))
	return nil
}
