package main

import (
	"fmt"
	"os"

	sandlib "github.com/AnishMulay/sandsync/clients/library"
	"github.com/AnishMulay/sandsync/internal/config"
	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", config.DefaultConfigPath(), "config file")
	pflag.Parse()

	cfg, _, err := config.LoadOrInit(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol.
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	ls, closeLog, err := cfg.Logging.OpenLogService("sandsync-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	compression, err := transfer.ParseCompression(cfg.Transfer.Compression)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	client, err := sandlib.NewSyncClient(sandlib.Options{
		ServerAddr:   cfg.Client.Server,
		MountDir:     cfg.Client.Mount,
		ClientID:     cfg.Client.ClientID,
		Deadline:     cfg.Client.Deadline,
		ResetTimeout: cfg.Client.ResetTimeout,
		ResetJitter:  cfg.Client.ResetJitter,
		ChunkSize:    cfg.Transfer.ChunkSize,
		Compression:  compression,
	}, ls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	s := server.NewMCPServer(
		"sandsync",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	addTools(s, &toolset{client: client})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	}
}
