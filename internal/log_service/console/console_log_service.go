package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/AnishMulay/sandsync/internal/log_service"
)

// ConsoleLogService writes formatted events to an io.Writer. The CLI points
// it at stderr; tests point it at io.Discard.
type ConsoleLogService struct {
	mu       sync.Mutex
	out      io.Writer
	nodeID   string
	minLevel int
}

func NewConsoleLogService(out io.Writer, nodeID string, minLogLevel string) *ConsoleLogService {
	return &ConsoleLogService{
		out:      out,
		nodeID:   nodeID,
		minLevel: log_service.GetLevelValue(minLogLevel),
	}
}

// NewDiscardLogService drops everything.
func NewDiscardLogService() *ConsoleLogService {
	return NewConsoleLogService(io.Discard, "", log_service.ErrorLevel)
}

func (ls *ConsoleLogService) log(level string, event log_service.LogEvent) {
	if log_service.GetLevelValue(level) < ls.minLevel {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	event.NodeID = ls.nodeID
	fmt.Fprintln(ls.out, log_service.FormatLine(level, event))
}

func (ls *ConsoleLogService) Debug(event log_service.LogEvent) {
	ls.log(log_service.DebugLevel, event)
}

func (ls *ConsoleLogService) Info(event log_service.LogEvent) {
	ls.log(log_service.InfoLevel, event)
}

func (ls *ConsoleLogService) Warn(event log_service.LogEvent) {
	ls.log(log_service.WarnLevel, event)
}

func (ls *ConsoleLogService) Error(event log_service.LogEvent) {
	ls.log(log_service.ErrorLevel, event)
}

var _ log_service.LogService = (*ConsoleLogService)(nil)
