package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Achbite/Server-System/pkg/server"
	"github.com/Achbite/Server-System/pkg/store"
	"github.com/rs/zerolog"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to config file")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	dataFile := flag.String("data", "", "Path to the account data file (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Account Server %s\n", Version)
		os.Exit(0)
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "account-server").
		Logger().Level(level)

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Command-line flags override config file
	if *port != 0 {
		config.Server.TCPPort = *port
	}
	if *dataFile != "" {
		config.Server.DataFile = *dataFile
	}

	path, err := config.GetDataFile()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve data file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to create data directory")
	}

	st := store.New(path, log)
	if err := st.Load(); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to load account data")
	}

	serverConfig := config.ToServerConfig()
	srv := server.NewServer(st, serverConfig, log)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	log.Info().
		Str("version", Version).
		Int("tcp_port", serverConfig.TCPPort).
		Int("http_port", serverConfig.HTTPPort).
		Str("data_file", path).
		Int("accounts", st.Count()).
		Msg("account server started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down server")
	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
