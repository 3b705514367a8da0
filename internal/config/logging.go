package config

import (
	"os"

	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/log_service/console"
	"github.com/AnishMulay/sandsync/internal/log_service/localdisc"
)

// OpenLogService builds the log service named by Output. The returned close
// func is never nil.
func (c LoggingConfig) OpenLogService(defaultNodeID string) (log_service.LogService, func() error, error) {
	nodeID := c.NodeID
	if nodeID == "" {
		nodeID = defaultNodeID
	}

	switch c.Output {
	case "stderr", "":
		return console.NewConsoleLogService(os.Stderr, nodeID, c.Level), func() error { return nil }, nil
	case "stdout":
		return console.NewConsoleLogService(os.Stdout, nodeID, c.Level), func() error { return nil }, nil
	default:
		ls, err := localdisc.NewLocalDiscLogService(c.Output, nodeID, c.Level)
		if err != nil {
			return nil, nil, err
		}
		return ls, ls.Close, nil
	}
}
