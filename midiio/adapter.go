// Package midiio adapts gomidi ports to the engine's polled event model:
// listener callbacks only timestamp and enqueue, and the engine drains the
// per-source queues once per tick.
package midiio

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/mty/chordtokit/ddti"
	"github.com/mty/chordtokit/errs"
	"github.com/mty/chordtokit/model"
	"github.com/mty/chordtokit/util"
)

// Ports matching any of these are ALSA virtual/system ports and are never
// auto-selected.
var excludedPatterns = []string{"Midi Through", "Through Port", "RtMidi"}

// padChannel is the zero-based channel the DDTi transmits pad hits on
// (channel 10, the factory default). Used to split traffic when both
// devices resolve to one physical port.
const padChannel = 9

// Config names the ports to bind. Exact names win; substring matching is
// the fallback so the device keeps working when ALSA renumbers clients.
type Config struct {
	KeyboardName   string
	KeyboardSubstr string
	DDTiInName     string
	DDTiInSubstr   string
	OutName        string
	OutSubstr      string
}

// queueSize bounds each pending queue; at display-refresh drain cadence a
// burst beyond this is already pathological and gets dropped.
const queueSize = 256

// Adapter owns the rtmidi driver, the three ports, and the pending queues.
type Adapter struct {
	log *slog.Logger
	cfg Config
	drv *rtmididrv.Driver

	mu       sync.Mutex
	kbIn     drivers.In
	ddtiIn   drivers.In
	out      drivers.Out
	stops    []func()
	kbName   string
	ddtiName string
	outName  string

	kbQ   chan model.Event
	ddtiQ chan model.Event
}

// New initialises the driver and opens whatever configured ports are
// present. Missing ports are logged, not fatal: the engine treats them as
// transient and the user recovers via ReopenPorts.
func New(cfg Config) (*Adapter, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errs.Transportf("rtmidi driver: %v", err)
	}
	a := &Adapter{
		log:   slog.Default().With("component", "midiio"),
		cfg:   cfg,
		drv:   drv,
		kbQ:   make(chan model.Event, queueSize),
		ddtiQ: make(chan model.Event, queueSize),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openPortsLocked()
	return a, nil
}

// Close stops all listeners and shuts the driver down.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closePortsLocked()
	a.drv.Close()
}

// ReopenPorts closes and reopens everything. This is the recovery path for
// "port busy": an external thru-routing collaborator may hold a port until
// it is asked to let go.
func (a *Adapter) ReopenPorts() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closePortsLocked()
	return a.openPortsLocked()
}

// Pending drains and returns the queued events for one source.
func (a *Adapter) Pending(src model.Source) []model.Event {
	q := a.kbQ
	if src == model.SourceDDTi {
		q = a.ddtiQ
	}
	var res []model.Event
	for {
		select {
		case ev := <-q:
			res = append(res, ev)
		default:
			return res
		}
	}
}

// DrainAll discards every queued event and reports how many were dropped.
func (a *Adapter) DrainAll() int {
	n := len(a.Pending(model.SourceKeyboard)) + len(a.Pending(model.SourceDDTi))
	if n > 0 {
		a.log.Debug("drained stale events", "count", n)
	}
	return n
}

// Send transmits a raw wire sequence to the DDTi output, one SysEx frame
// per driver call. Plain (non-SysEx) messages go out as-is.
func (a *Adapter) Send(wire []byte) error {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return errs.Transportf("no output port open")
	}

	if len(wire) > 0 && wire[0] == 0xF0 {
		for _, frame := range ddti.SplitFrames(wire) {
			if err := out.Send(frame); err != nil {
				return errs.Transportf("send: %v", err)
			}
		}
		return nil
	}
	if err := out.Send(wire); err != nil {
		return errs.Transportf("send: %v", err)
	}
	return nil
}

// PortName reports the currently open port for a source.
func (a *Adapter) PortName(src model.Source) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch src {
	case model.SourceKeyboard:
		return a.kbName, a.kbName != ""
	case model.SourceDDTi:
		return a.ddtiName, a.ddtiName != ""
	}
	return "", false
}

// OutPortName reports the open output port.
func (a *Adapter) OutPortName() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outName, a.outName != ""
}

// --- port management ---

func (a *Adapter) closePortsLocked() {
	for _, stop := range a.stops {
		stop()
	}
	a.stops = nil
	if a.kbIn != nil {
		_ = a.kbIn.Close()
		a.kbIn = nil
	}
	if a.ddtiIn != nil {
		_ = a.ddtiIn.Close()
		a.ddtiIn = nil
	}
	if a.out != nil {
		_ = a.out.Close()
		a.out = nil
	}
	a.kbName, a.ddtiName, a.outName = "", "", ""
}

func (a *Adapter) openPortsLocked() error {
	var firstErr error

	ins, err := a.drv.Ins()
	if err != nil {
		return errs.Transportf("list inputs: %v", err)
	}
	outs, err := a.drv.Outs()
	if err != nil {
		return errs.Transportf("list outputs: %v", err)
	}

	kbPort := pickIn(ins, a.cfg.KeyboardName, a.cfg.KeyboardSubstr)
	ddtiPort := pickIn(ins, a.cfg.DDTiInName, a.cfg.DDTiInSubstr)

	if kbPort == nil {
		a.log.Warn("no keyboard input matched", "substr", a.cfg.KeyboardSubstr)
	}
	if ddtiPort == nil {
		a.log.Warn("no ddti input matched", "substr", a.cfg.DDTiInSubstr)
	}

	if kbPort != nil && kbPort == ddtiPort {
		// Both devices behind one physical port: a single listener splits
		// the traffic by content (SysEx and pad-channel notes to the DDTi
		// queue, everything else to the keyboard queue).
		if err := a.listen(kbPort, a.sharedRoute); err != nil {
			a.log.Warn("shared input unavailable", "port", kbPort.String(), "err", err)
			firstErr = err
		} else {
			a.kbIn = kbPort
			a.kbName = kbPort.String()
			a.ddtiName = a.kbName
			a.log.Info("keyboard and ddti share one port, routing by content", "port", a.kbName)
		}
	} else {
		if kbPort != nil {
			if err := a.listen(kbPort, fixedRoute(model.SourceKeyboard, a.kbQ)); err != nil {
				a.log.Warn("keyboard input unavailable", "port", kbPort.String(), "err", err)
				firstErr = err
			} else {
				a.kbIn = kbPort
				a.kbName = kbPort.String()
				a.log.Info("keyboard input open", "port", a.kbName)
			}
		}
		if ddtiPort != nil {
			if err := a.listen(ddtiPort, fixedRoute(model.SourceDDTi, a.ddtiQ)); err != nil {
				a.log.Warn("ddti input unavailable", "port", ddtiPort.String(), "err", err)
				firstErr = err
			} else {
				a.ddtiIn = ddtiPort
				a.ddtiName = ddtiPort.String()
				a.log.Info("ddti input open", "port", a.ddtiName)
			}
		}
	}

	if out := pickOut(outs, a.cfg.OutName, a.cfg.OutSubstr); out != nil {
		if err := out.Open(); err != nil {
			a.log.Warn("output unavailable", "port", out.String(), "err", err)
			firstErr = err
		} else {
			a.out = out
			a.outName = out.String()
			a.log.Info("output open", "port", a.outName)
		}
	} else {
		a.log.Warn("no output matched", "substr", a.cfg.OutSubstr)
	}

	if firstErr != nil {
		return errs.Transportf("reopen incomplete: %v", firstErr)
	}
	return nil
}

// route decides which device a message belongs to and which queue takes it.
type route func(midi.Message) (model.Source, chan model.Event, bool)

func fixedRoute(src model.Source, q chan model.Event) route {
	return func(midi.Message) (model.Source, chan model.Event, bool) {
		return src, q, true
	}
}

// sharedRoute classifies traffic on a port carrying both devices: SysEx and
// pad-channel notes belong to the DDTi, remaining notes to the keyboard.
func (a *Adapter) sharedRoute(msg midi.Message) (model.Source, chan model.Event, bool) {
	var ch, key, vel uint8
	if msg.GetNoteStart(&ch, &key, &vel) {
		if ch == padChannel {
			return model.SourceDDTi, a.ddtiQ, true
		}
		return model.SourceKeyboard, a.kbQ, true
	}
	var bt []byte
	if msg.GetSysEx(&bt) {
		return model.SourceDDTi, a.ddtiQ, true
	}
	return 0, nil, false
}

func (a *Adapter) listen(in drivers.In, r route) error {
	if err := in.Open(); err != nil {
		return err
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		src, q, ok := r(msg)
		if !ok {
			return
		}
		ev, ok := convert(msg, src)
		if !ok {
			return
		}
		select {
		case q <- ev:
		default:
			a.log.Warn("pending queue full, event dropped", "source", src.String())
		}
	}, midi.UseSysEx(), midi.HandleError(func(err error) {
		a.log.Warn("listener error", "port", in.String(), "err", err)
	}))
	if err != nil {
		_ = in.Close()
		return err
	}
	a.stops = append(a.stops, stop)
	return nil
}

// convert reduces a wire message to the engine's event model: note-ons and
// SysEx frames, everything else dropped.
func convert(msg midi.Message, src model.Source) (model.Event, bool) {
	now := time.Now()
	var ch, key, vel uint8
	var bt []byte
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return model.Event{
			Source:    src,
			Timestamp: now,
			Note:      &model.NoteEvent{Note: key, Velocity: vel, Source: src, Timestamp: now},
		}, true
	case msg.GetSysEx(&bt):
		return model.Event{
			Source:    src,
			Timestamp: now,
			SysEx:     append([]byte(nil), bt...),
		}, true
	}
	return model.Event{}, false
}

// --- port selection ---

// ListInputs returns the selectable input port names.
func ListInputs() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return filterPorts(names)
}

// ListOutputs returns the selectable output port names.
func ListOutputs() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return filterPorts(names)
}

func filterPorts(names []string) []string {
	var res []string
	for _, n := range util.Dedupe(names) {
		if !isVirtual(n) {
			res = append(res, n)
		}
	}
	return res
}

func isVirtual(name string) bool {
	for _, pat := range excludedPatterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func pickIn(ins []drivers.In, exact, substr string) drivers.In {
	for _, in := range ins {
		if exact != "" && in.String() == exact {
			return in
		}
	}
	for _, in := range ins {
		if isVirtual(in.String()) {
			continue
		}
		if substr != "" && containsCI(in.String(), substr) {
			return in
		}
	}
	return nil
}

func pickOut(outs []drivers.Out, exact, substr string) drivers.Out {
	for _, out := range outs {
		if exact != "" && out.String() == exact {
			return out
		}
	}
	for _, out := range outs {
		if isVirtual(out.String()) {
			continue
		}
		if substr != "" && containsCI(out.String(), substr) {
			return out
		}
	}
	return nil
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
