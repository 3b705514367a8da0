package localdisc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/AnishMulay/sandsync/internal/log_service"
)

// LocalDiscLogService appends events to <logDir>/<nodeID>.log, one line per
// event. Events below the minimum level are dropped.
type LocalDiscLogService struct {
	nodeID   string
	path     string
	minLevel int

	mu  sync.Mutex
	out io.WriteCloser
}

// NewLocalDiscLogService opens the node's log file for appending. The
// optional level defaults to DEBUG.
func NewLocalDiscLogService(logDir string, nodeID string, minLogLevel ...string) (*LocalDiscLogService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(logDir, nodeID+".log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	minLevel := log_service.DebugLevelValue
	if len(minLogLevel) > 0 && minLogLevel[0] != "" {
		minLevel = log_service.GetLevelValue(minLogLevel[0])
	}

	return &LocalDiscLogService{
		nodeID:   nodeID,
		path:     path,
		minLevel: minLevel,
		out:      file,
	}, nil
}

func (ls *LocalDiscLogService) Path() string {
	return ls.path
}

func (ls *LocalDiscLogService) Close() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.out.Close()
}

func (ls *LocalDiscLogService) write(level string, event log_service.LogEvent) {
	if log_service.GetLevelValue(level) < ls.minLevel {
		return
	}
	event.NodeID = ls.nodeID
	line := log_service.FormatLine(level, event) + "\n"

	ls.mu.Lock()
	defer ls.mu.Unlock()
	// A failed log write has nowhere better to go.
	_, _ = io.WriteString(ls.out, line)
}

func (ls *LocalDiscLogService) Debug(event log_service.LogEvent) {
	ls.write(log_service.DebugLevel, event)
}

func (ls *LocalDiscLogService) Info(event log_service.LogEvent) {
	ls.write(log_service.InfoLevel, event)
}

func (ls *LocalDiscLogService) Warn(event log_service.LogEvent) {
	ls.write(log_service.WarnLevel, event)
}

func (ls *LocalDiscLogService) Error(event log_service.LogEvent) {
	ls.write(log_service.ErrorLevel, event)
}

var _ log_service.LogService = (*LocalDiscLogService)(nil)
