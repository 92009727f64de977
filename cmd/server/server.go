package main

import (
	"flag"
	"log"

	"github.com/tmpim/kabe/config"
	"github.com/tmpim/kabe/history"
	"github.com/tmpim/kabe/server"
)

var (
	configPath = flag.String("config", "", "set a YAML config file")
	listen     = flag.String("listen", "", "set the listen address, overrides the config")
	historyDB  = flag.String("history", "", "set the sqlite database conversions are recorded in, overrides the config")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal("kabe server: failed to load config: ", err)
		}
	}

	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *historyDB != "" {
		cfg.Server.HistoryDB = *historyDB
	}

	var store *history.Store
	if cfg.Server.HistoryDB != "" {
		var err error
		store, err = history.Open(cfg.Server.HistoryDB)
		if err != nil {
			log.Fatal("kabe server: failed to open history: ", err)
		}
		defer store.Close()

		log.Println("kabe server: recording conversions in", cfg.Server.HistoryDB)
	}

	s, err := server.New(cfg, store)
	if err != nil {
		log.Fatal("kabe server: ", err)
	}

	log.Println("kabe server: listening on", cfg.Server.Listen)
	log.Fatal(s.Start(cfg.Server.Listen))
}
