package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sandlib "github.com/AnishMulay/sandsync/clients/library"
	"github.com/AnishMulay/sandsync/internal/config"
	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mirror client.mount with the server until interrupted",
	Long: `Keep client.mount in step with the server.

Local files created or written in the mount directory are uploaded, and
files changed on the server are downloaded. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runMount,
}

var storeCmd = &cobra.Command{
	Use:   "store <name>",
	Short: "Upload a file from the mount directory",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *sandlib.SyncClient, args []string) error {
		return c.Store(ctx, args[0])
	}),
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <name>",
	Short: "Download a file into the mount directory",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *sandlib.SyncClient, args []string) error {
		return c.Fetch(ctx, args[0])
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a file on the server and in the mount directory",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *sandlib.SyncClient, args []string) error {
		return c.Delete(ctx, args[0])
	}),
}

var lockCmd = &cobra.Command{
	Use:   "lock <name>",
	Short: "Take or renew the write lock on a file",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *sandlib.SyncClient, args []string) error {
		return c.RequestWriteLock(ctx, args[0])
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files stored on the server",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *sandlib.SyncClient, args []string) error {
		records, err := c.List(ctx)
		if err != nil {
			return err
		}
		printRecords(os.Stdout, records)
		return nil
	}),
}

var statCmd = &cobra.Command{
	Use:   "stat <name>",
	Short: "Show size, modification time and checksum of a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *sandlib.SyncClient, args []string) error {
		record, err := c.Stat(ctx, args[0])
		if err != nil {
			return err
		}
		printRecords(os.Stdout, []file_record.FileRecord{record})
		return nil
	}),
}

var clientIDFlag string

func init() {
	for _, cmd := range []*cobra.Command{mountCmd, storeCmd, fetchCmd, deleteCmd, lockCmd} {
		cmd.Flags().StringVar(&clientIDFlag, "client-id", "", "client id used for write locks (default: client.client_id or a random id)")
	}
}

// clientOptions maps the client and transfer sections onto library options.
func clientOptions(cfg *config.Config) (sandlib.Options, error) {
	compression, err := transfer.ParseCompression(cfg.Transfer.Compression)
	if err != nil {
		return sandlib.Options{}, err
	}

	clientID := cfg.Client.ClientID
	if clientIDFlag != "" {
		clientID = clientIDFlag
	}

	return sandlib.Options{
		ServerAddr:   cfg.Client.Server,
		MountDir:     cfg.Client.Mount,
		ClientID:     clientID,
		Deadline:     cfg.Client.Deadline,
		ResetTimeout: cfg.Client.ResetTimeout,
		ResetJitter:  cfg.Client.ResetJitter,
		Debounce:     cfg.Client.Debounce,
		ChunkSize:    cfg.Transfer.ChunkSize,
		Compression:  compression,
	}, nil
}

func openClient(defaultNodeID string) (*sandlib.SyncClient, log_service.LogService, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	ls, closeLog, err := cfg.Logging.OpenLogService(defaultNodeID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open log: %w", err)
	}

	client, err := sandlib.NewSyncClient(opts, ls)
	if err != nil {
		closeLog()
		return nil, nil, nil, err
	}

	return client, ls, func() error {
		return errors.Join(client.Close(), closeLog())
	}, nil
}

// withClient runs fn against a fresh client and reports the outcome as a
// status code, the way every client operation reports it.
func withClient(fn func(ctx context.Context, c *sandlib.SyncClient, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, _, closeClient, err := openClient("sandsync-cli")
		if err != nil {
			return err
		}
		defer closeClient()

		err = fn(cmd.Context(), client, args)
		return reportStatus(cmd, err)
	}
}

func reportStatus(cmd *cobra.Command, err error) error {
	if errors.Is(err, sandlib.ErrLocalIO) {
		return err
	}
	st := status.Convert(err)
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", st.Code())
		return nil
	}
	return fmt.Errorf("%s: %s", st.Code(), st.Message())
}

func runMount(cmd *cobra.Command, args []string) error {
	client, ls, closeClient, err := openClient("sandsync-mount")
	if err != nil {
		return err
	}
	defer closeClient()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ls.Info(log_service.LogEvent{
		Message:  "Mounting",
		Metadata: map[string]any{"mount": client.MountDir(), "clientID": client.ClientID()},
	})

	if err := client.Mount(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
