package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"LayerHop/internal/gateway"
	"LayerHop/internal/hop"
	"LayerHop/internal/presenter"
	"LayerHop/internal/store"
)

const tickInterval = 200 * time.Millisecond

// unixNow is the engine clock: wall time as float seconds, so persisted host
// record expiries stay valid across restarts.
func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Start wires everything together and serves until the listener fails.
func Start(configPath string, overrides Overrides) error {
	cfg := DefaultConfig()
	loaded, err := loadConfigFromFile(configPath, cfg)
	if err == nil {
		cfg = loaded
	}
	cfg = overrides.apply(cfg)
	cfg.Params = cfg.Params.Sanitize()

	logger, logErr := buildLogger(cfg.Debug)
	if logErr != nil {
		return logErr
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	if err != nil {
		sugar.Infow("config file not loaded, using defaults", "err", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	mem := hop.NewHostMemory(st, sugar)
	if err := mem.Restore(unixNow()); err != nil {
		sugar.Warnw("host memory not restored", "err", err)
	}

	events := make(chan hop.Event, 256)

	// The bridge and presenter reference each other (frames out, prefs in),
	// so the pref sink closes over the presenter variable assigned below.
	var pres *presenter.Presenter
	bridge := gateway.NewBridge(events, func(name, value string) {
		if err := st.SetPref(name, value); err != nil {
			sugar.Warnw("pref not persisted", "name", name, "err", err)
		}
		if name == "toast_duration" && pres != nil {
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				pres.SetToastDuration(v)
			}
		}
	}, sugar)
	pres = presenter.New(bridge, st.PrefFloat("toast_duration", presenter.DefaultToastDurationS), sugar)

	eng := hop.NewEngine(
		cfg.Params,
		bridge,
		mem,
		hop.NewSignalCollector(cfg.Params.StalenessWindowS),
		pres,
		sugar,
	)
	eng.Advance(unixNow())

	go runLoop(eng, events)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.ServeWS)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		snap := pres.Latest()
		if snap == nil {
			idle := hop.Snapshot{State: "idle"}
			snap = &idle
		}
		_ = json.NewEncoder(w).Encode(snap)
	})

	sugar.Infow("layerhop listening", "addr", cfg.Listen,
		"hop_timeout_s", cfg.Params.HopTimeoutS, "max_retries", cfg.Params.MaxRetries)
	return http.ListenAndServe(cfg.Listen, mux)
}

// runLoop serializes all engine input onto one goroutine. The engine is
// cooperative and single-threaded; nothing else may touch it.
func runLoop(eng *hop.Engine, events <-chan hop.Event) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			eng.Advance(unixNow())
			eng.Handle(ev)
		case <-ticker.C:
			eng.Advance(unixNow())
		}
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
