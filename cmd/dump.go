package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mty/chordtokit/config"
	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/ddti"
	"github.com/mty/chordtokit/dumpfile"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/midiio"
	"github.com/mty/chordtokit/model"
	"github.com/mty/chordtokit/util"
)

var (
	dumpTimeout time.Duration
	dumpOut     string
)

func init() {
	dumpCmd.Flags().DurationVar(&dumpTimeout, "timeout", 30*time.Second,
		"how long to wait for the dump")
	dumpCmd.Flags().StringVar(&dumpOut, "out", "kit0_dump.mid",
		"file to save the captured dump to")
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Capture a kit dump from the hardware and save it",
	Long: `Wait for a manually triggered bulk dump from the module, save the raw
frames to a MIDI file, and print the trigger notes it contains.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return captureDump()
	},
}

func captureDump() error {
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

	fmt.Printf("waiting %s for a bulk dump; send it from the module now\n", dumpTimeout)

	codec := ddti.New()
	deadline := time.Now().Add(dumpTimeout)
	ticker := time.NewTicker(constants.TickInterval)
	defer ticker.Stop()

	for range ticker.C {
		if time.Now().After(deadline) {
			return errs.Transportf("no complete dump within %s", dumpTimeout)
		}
		for _, ev := range adapter.Pending(model.SourceDDTi) {
			if ev.SysEx == nil {
				continue
			}
			if err := codec.IngestFrame(ev.SysEx); err != nil {
				fmt.Printf("frame rejected: %v\n", err)
			}
		}
		if codec.HasCompleteDump() {
			break
		}
	}

	snap, err := codec.Snapshot()
	if err != nil {
		return err
	}
	var frames [][]byte
	for _, f := range ddti.SplitFrames(ddti.FrameDump(snap)) {
		frames = append(frames, f[1:len(f)-1])
	}
	if err := dumpfile.Write(dumpOut, frames); err != nil {
		return err
	}

	m, err := codec.ExtractMapping()
	if err != nil {
		return err
	}
	fmt.Printf("dump saved to %s\n", dumpOut)
	for i, n := range m.Notes() {
		fmt.Printf("  %-6s %s (%d)\n", model.SlotNames[i], util.NoteName(n), n)
	}
	return nil
}
