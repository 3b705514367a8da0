package simple

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnishMulay/sandsync/internal/communication"
	"github.com/AnishMulay/sandsync/internal/file_service"
	"github.com/AnishMulay/sandsync/internal/lock_service"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/metrics"
	promMetrics "github.com/AnishMulay/sandsync/internal/metrics/prometheus"
	"github.com/AnishMulay/sandsync/internal/mount"
	"github.com/AnishMulay/sandsync/internal/notify_service"
	"github.com/AnishMulay/sandsync/internal/server"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	NodeID       string
	ListenAddr   string
	MountDir     string
	LeaseTTL     time.Duration
	CallbackHold time.Duration
	WatchMount   bool
	ChunkSize    int

	MetricsEnabled bool
	MetricsAddr    string

	LogService log_service.LogService
}

type runnable interface {
	Run() error
}

type singleNodeServer struct {
	server  *server.DefaultServer
	metrics *http.Server
	ls      log_service.LogService
}

// Run serves until SIGINT or SIGTERM.
func (s *singleNodeServer) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext serves until ctx is done.
func (s *singleNodeServer) RunContext(ctx context.Context) error {
	if err := s.server.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if s.metrics != nil {
		g.Go(func() error {
			s.ls.Info(log_service.LogEvent{
				Message:  "Serving metrics",
				Metadata: map[string]any{"address": s.metrics.Addr},
			})
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		var errs []error
		if s.metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs = append(errs, s.metrics.Shutdown(shutdownCtx))
		}
		errs = append(errs, s.server.Stop())
		return errors.Join(errs...)
	})
	return g.Wait()
}

func Build(opts Options) (runnable, error) {
	ls := opts.LogService
	if ls == nil {
		return nil, errors.New("log service is required")
	}

	root, err := mount.New(opts.MountDir)
	if err != nil {
		return nil, err
	}

	var m metrics.ServerMetrics
	var metricsServer *http.Server
	if opts.MetricsEnabled {
		metrics.InitRegistry()
		m = promMetrics.NewServerMetrics()
		metricsServer = &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	locks := lock_service.NewInMemoryLockService(opts.LeaseTTL, ls, m)
	notifier := notify_service.NewChangeNotifier(ls, m)
	fs := file_service.NewDefaultFileService(root, locks, notifier, ls, opts.ChunkSize)
	serverOpts := append(server.ServerOptions(ls, m), communication.ServerMessageOptions(fs.ChunkSize())...)
	comm := communication.NewGRPCServer(opts.ListenAddr, ls, serverOpts...)

	var watchers []server.Watcher
	if opts.WatchMount {
		watchers = append(watchers, notify_service.NewDirWatcher(root.Dir(), notifier, ls))
	}

	srv := server.NewDefaultServer(comm, fs, ls, m, opts.CallbackHold, watchers...)

	ls.Info(log_service.LogEvent{
		Message:  "Server built",
		Metadata: map[string]any{"nodeID": opts.NodeID, "listen": opts.ListenAddr, "mount": root.Dir()},
	})

	return &singleNodeServer{server: srv, metrics: metricsServer, ls: ls}, nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
