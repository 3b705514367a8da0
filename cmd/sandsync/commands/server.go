package commands

import (
	"fmt"
	"os"

	"github.com/AnishMulay/sandsync/servers/simple"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the sandsync server",
	Long: `Run the sandsync server until interrupted.

The server stores files under server.mount and listens on server.listen.

Examples:
  sandsync server
  SANDSYNC_SERVER_LISTEN=:6000 sandsync server`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	ls, closeLog, err := cfg.Logging.OpenLogService(hostname)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closeLog()

	srv, err := simple.Build(simple.Options{
		NodeID:         hostname,
		ListenAddr:     cfg.Server.Listen,
		MountDir:       cfg.Server.Mount,
		LeaseTTL:       cfg.Server.LeaseTTL,
		CallbackHold:   cfg.Server.CallbackHold,
		WatchMount:     cfg.Server.WatchMount,
		ChunkSize:      cfg.Transfer.ChunkSize,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsAddr:    cfg.Metrics.Listen,
		LogService:     ls,
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	fmt.Printf("sandsync server listening on %s, serving %s\n", cfg.Server.Listen, cfg.Server.Mount)
	return srv.Run()
}
