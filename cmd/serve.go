package cmd

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/mty/chordtokit/constants"
	"github.com/mty/chordtokit/engine"
	"github.com/mty/chordtokit/errs"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with an HTTP control surface",
	Long: `Run the engine continuously and expose status and control endpoints
over HTTP, for a footswitch bridge or a browser frontend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	eng, adapter, cfg, err := buildEngine()
	if err != nil {
		return err
	}
	defer adapter.Close()
	defer cfg.Save()

	go func() {
		ticker := time.NewTicker(constants.TickInterval)
		defer ticker.Stop()
		for range ticker.C {
			eng.Tick()
		}
	}()

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/status", handleStatus(eng)).Methods("GET")
	router.HandleFunc("/mapping", handleMapping(eng)).Methods("GET")
	router.HandleFunc("/capture/{mode}", handleStartCapture(eng)).Methods("POST")
	router.HandleFunc("/capture", handleStopCapture(eng)).Methods("DELETE")
	router.HandleFunc("/undo", handleUndo(eng)).Methods("POST")
	router.HandleFunc("/policy", handlePolicy(eng)).Methods("PUT")
	router.HandleFunc("/ports/reopen", handleReopen(eng)).Methods("POST")

	log.Printf("listening on %s", serveAddr)
	return http.ListenAndServe(serveAddr, cors.Default().Handler(router))
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, errs.ErrPrecondition):
		code = http.StatusConflict
	case errors.Is(err, errs.ErrTransport):
		code = http.StatusBadGateway
	}
	http.Error(w, err.Error(), code)
}

func handleStatus(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(eng.Status())
	}
}

func handleMapping(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := eng.Status()
		if !st.HasMapping {
			http.Error(w, "no mapping learned", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(st.Mapping)
	}
}

func handleStartCapture(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := parseMode(mux.Vars(r)["mode"])
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := eng.StartCapture(mode); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func handleStopCapture(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng.StopCapture()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUndo(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := eng.Undo()
		if err != nil {
			writeErr(w, err)
			return
		}
		if !ok {
			http.Error(w, "nothing to undo", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(eng.Status())
	}
}

func handlePolicy(eng *engine.Engine) http.HandlerFunc {
	type policyBody struct {
		AllowDuplicates  *bool `json:"allowDuplicates"`
		OctaveDownLowest *bool `json:"octaveDownLowest"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var body policyBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(w, errs.Validationf("bad policy body: %v", err))
			return
		}
		if body.AllowDuplicates != nil {
			eng.SetAllowDuplicates(*body.AllowDuplicates)
		}
		if body.OctaveDownLowest != nil {
			eng.SetOctaveDown(*body.OctaveDownLowest)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleReopen(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.ReopenPorts(); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
