package main

import (
	"embed"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rodri-castro/joy-base-control/internal/server"
	"github.com/rodri-castro/joy-base-control/internal/teleop"
)

//go:embed web/*
var staticFiles embed.FS

func main() {
	// Command line flags
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	paramsPath := flag.String("params", "", "YAML teleop parameter file")
	baseAddr := flag.String("base", "", "base command address (host:port)")
	baseProto := flag.String("base-proto", "udp", "base command protocol (udp or tcp)")
	rtspURL := flag.String("rtsp", "", "RTSP URL for the onboard camera")
	flag.Parse()

	params := teleop.DefaultParams()
	if *paramsPath != "" {
		var err error
		params, err = teleop.LoadParams(*paramsPath)
		if err != nil {
			log.Fatalf("Failed to load params: %v", err)
		}
	}

	cfg := server.Config{
		ListenAddr:   *listenAddr,
		Params:       params,
		BaseAddress:  *baseAddr,
		BaseProtocol: *baseProto,
		RTSPURL:      *rtspURL,
	}

	srv, err := server.New(cfg, staticFiles)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		srv.Stop()
	}()

	log.Printf("Joy Base Control Server")
	log.Printf("  Listen: %s", cfg.ListenAddr)
	if *paramsPath != "" {
		log.Printf("  Params: %s", *paramsPath)
	}
	if cfg.BaseAddress != "" {
		log.Printf("  Base: %s (%s)", cfg.BaseAddress, cfg.BaseProtocol)
	}
	if cfg.RTSPURL != "" {
		log.Printf("  Camera: %s", cfg.RTSPURL)
	}

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
