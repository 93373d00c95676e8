package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/awalnet/awalnet/pkg/logging"
	"github.com/awalnet/awalnet/pkg/server"
	"github.com/awalnet/awalnet/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file (flags override defaults, file overrides flags)")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP bind address")
	flag.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Maximum concurrent sessions")
	flag.IntVar(&cfg.MaxGames, "max-games", cfg.MaxGames, "Maximum concurrent games")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("awalnet-server " + version.Full())
		return
	}

	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	slog.Info("starting awalnet server", "version", version.String())

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
