package main

import (
	"flag"
	"log"
	"math"

	"LayerHop/internal/app"
)

func main() {
	configPath := flag.String("config", "configs/layerhop.yaml", "path to the YAML config file")
	listen := flag.String("addr", "", "override listen address (e.g., 127.0.0.1:7344)")
	storePath := flag.String("store", "", "override path of the persistent store")
	debug := flag.Bool("debug", false, "enable debug logging")
	hopTimeout := flag.Float64("hop-timeout", math.NaN(), "override hop timeout in seconds")
	settleDelay := flag.Float64("settle-delay", math.NaN(), "override post-join settle delay in seconds")
	staleness := flag.Float64("staleness", math.NaN(), "override signal staleness window in seconds")
	maxRetries := flag.Int("max-retries", -1, "override invite retry budget")
	flag.Parse()

	var overrides app.Overrides
	if *listen != "" {
		overrides.Listen = listen
	}
	if *storePath != "" {
		overrides.StorePath = storePath
	}
	if *debug {
		overrides.Debug = debug
	}
	if !math.IsNaN(*hopTimeout) {
		overrides.HopTimeoutS = hopTimeout
	}
	if !math.IsNaN(*settleDelay) {
		overrides.SettleDelayS = settleDelay
	}
	if !math.IsNaN(*staleness) {
		overrides.StalenessS = staleness
	}
	if *maxRetries >= 0 {
		overrides.MaxRetries = maxRetries
	}

	if err := app.Start(*configPath, overrides); err != nil {
		log.Fatal(err)
	}
}
