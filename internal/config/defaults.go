package config

import (
	"time"

	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/transfer"
)

// Default is a single-machine setup: the server mounts ./data/server and
// clients mirror it into ./data/mirror.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  log_service.InfoLevel,
			Output: "stderr",
		},
		Server: ServerConfig{
			Listen:       "localhost:50051",
			Mount:        "./data/server",
			LeaseTTL:     30 * time.Second,
			CallbackHold: 5 * time.Second,
			WatchMount:   true,
		},
		Client: ClientConfig{
			Server:       "localhost:50051",
			Mount:        "./data/mirror",
			Deadline:     10 * time.Second,
			ResetTimeout: time.Second,
			ResetJitter:  500 * time.Millisecond,
			Debounce:     200 * time.Millisecond,
		},
		Transfer: TransferConfig{
			ChunkSize:   transfer.DefaultChunkSize,
			Compression: string(transfer.CompressionNone),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "localhost:9090",
		},
	}
}
