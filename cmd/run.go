package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mty/chordtokit/config"
	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/engine"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/midiio"
	"github.com/mty/chordtokit/session"
)

var captureMode string

func init() {
	runCmd.Flags().StringVar(&captureMode, "capture", "",
		"capture mode: chord, learn, single or sync (default from config)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one capture session and exit",
	Long:  `Run one capture session and exit when it completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce()
	},
}

func parseMode(s string) (session.Mode, error) {
	switch s {
	case "chord":
		return session.ModeChord, nil
	case "learn":
		return session.ModeLearn, nil
	case "single":
		return session.ModeSingle, nil
	case "sync":
		return session.ModeSync, nil
	}
	return 0, errs.Validationf("unknown capture mode %q", s)
}

func buildEngine() (*engine.Engine, *midiio.Adapter, *config.Config, error) {
	cfg := config.Load(configPath)
	adapter, err := midiio.New(midiio.Config{
		KeyboardSubstr: cfg.GetString("midi_in_substr"),
		DDTiInSubstr:   cfg.GetString("ddti_in_substr"),
		OutSubstr:      cfg.GetString("midi_out_substr"),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return engine.New(cfg, adapter), adapter, cfg, nil
}

func runOnce() error {
	mode := captureMode
	eng, adapter, cfg, err := buildEngine()
	if err != nil {
		return err
	}
	defer adapter.Close()
	defer cfg.Save()

	if mode == "" {
		mode = cfg.GetString("footswitch_capture_mode")
	}
	m, err := parseMode(mode)
	if err != nil {
		return err
	}
	if err := eng.StartCapture(m); err != nil {
		return err
	}
	fmt.Printf("capture started (%s); play now\n", mode)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(constants.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			slog.Info("interrupted, stopping capture")
			eng.StopCapture()
			return nil
		case <-ticker.C:
			eng.Tick()
			if !eng.Active() {
				printOutcome(eng)
				return nil
			}
		}
	}
}

func printOutcome(eng *engine.Engine) {
	st := eng.Status()
	if st.HasMapping {
		fmt.Printf("mapping: %v\n", st.Mapping)
	} else {
		fmt.Println("no mapping learned")
	}
}
