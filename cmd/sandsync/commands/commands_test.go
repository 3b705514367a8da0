package commands

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	sandlib "github.com/AnishMulay/sandsync/clients/library"
	"github.com/AnishMulay/sandsync/internal/config"
	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Client.ClientID = "from-config"
	cfg.Transfer.Compression = "zstd"

	opts, err := clientOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Client.Server, opts.ServerAddr)
	assert.Equal(t, cfg.Client.Mount, opts.MountDir)
	assert.Equal(t, "from-config", opts.ClientID)
	assert.Equal(t, transfer.CompressionZstd, opts.Compression)
	assert.Equal(t, cfg.Transfer.ChunkSize, opts.ChunkSize)

	clientIDFlag = "from-flag"
	t.Cleanup(func() { clientIDFlag = "" })
	opts, err = clientOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", opts.ClientID)

	cfg.Transfer.Compression = "lz4"
	_, err = clientOptions(cfg)
	assert.ErrorIs(t, err, transfer.ErrUnknownCompression)
}

func TestReportStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantOut string
		wantErr string
	}{
		{name: "ok", wantOut: "OK\n"},
		{name: "status", err: status.Error(codes.NotFound, "no such file"), wantErr: "NotFound: no such file"},
		{name: "local", err: fmt.Errorf("%w: disk full", sandlib.ErrLocalIO), wantErr: "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&out)

			err := reportStatus(cmd, tt.err)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOut, out.String())
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunInit(t *testing.T) {
	cfgFile = filepath.Join(t.TempDir(), "config.yaml")
	t.Cleanup(func() { cfgFile = ""; initForce = false })

	require.NoError(t, runInit(initCmd, nil))
	_, err := config.Load(cfgFile)
	require.NoError(t, err)

	assert.Error(t, runInit(initCmd, nil))

	initForce = true
	assert.NoError(t, runInit(initCmd, nil))
}

func TestPrintRecords(t *testing.T) {
	var out bytes.Buffer
	printRecords(&out, []file_record.FileRecord{{Name: "report.txt", Size: 10, Mtime: 0, Checksum: "abc"}})
	assert.Contains(t, out.String(), "report.txt")
	assert.Contains(t, out.String(), "abc")
}
