package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	sandlib "github.com/AnishMulay/sandsync/clients/library"
	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/AnishMulay/sandsync/internal/mount"
	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type toolset struct {
	client *sandlib.SyncClient
}

func addTools(s *server.MCPServer, t *toolset) {
	nameArg := mcp.WithString("name",
		mcp.Required(),
		mcp.Description("File name inside the mount directory"),
	)

	s.AddTool(mcp.NewTool("store_file",
		mcp.WithDescription("Write content to a file in the mount directory and upload it"),
		nameArg,
		mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result(t.storeFile(ctx, name, content))
	})

	s.AddTool(mcp.NewTool("fetch_file",
		mcp.WithDescription("Download a file from the server and return its content"),
		nameArg,
	), withName(t.fetchFile))

	s.AddTool(mcp.NewTool("delete_file",
		mcp.WithDescription("Delete a file on the server and in the mount directory"),
		nameArg,
	), withName(t.deleteFile))

	s.AddTool(mcp.NewTool("stat_file",
		mcp.WithDescription("Show size, modification time and checksum of a stored file"),
		nameArg,
	), withName(t.statFile))

	s.AddTool(mcp.NewTool("write_lock",
		mcp.WithDescription("Take or renew the write lock on a file"),
		nameArg,
	), withName(t.writeLock))

	s.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List the files stored on the server"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return result(t.listFiles(ctx))
	})
}

func withName(fn func(ctx context.Context, name string) (string, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result(fn(ctx, name))
	}
}

func result(text string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		st := status.Convert(err)
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", st.Code(), st.Message())), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (t *toolset) localPath(name string) (string, error) {
	cleaned, err := mount.Clean(name)
	if err != nil {
		return "", err
	}
	if strings.Contains(cleaned, "/") {
		return "", fmt.Errorf("nested names are not supported: %q", name)
	}
	root, err := mount.New(t.client.MountDir())
	if err != nil {
		return "", err
	}
	return root.Resolve(cleaned)
}

func (t *toolset) storeFile(ctx context.Context, name, content string) (string, error) {
	path, err := t.localPath(name)
	if err != nil {
		return "", err
	}

	f, err := transfer.NewAtomicFile(path)
	if err != nil {
		return "", err
	}
	if _, err := f.Write([]byte(content)); err != nil {
		f.Abort()
		return "", err
	}
	if err := f.Commit(time.Now().Unix()); err != nil {
		return "", err
	}

	err = t.client.Store(ctx, name)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Sprintf("%s is unchanged on the server", name), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Stored %s (%d bytes)", name, len(content)), nil
}

func (t *toolset) fetchFile(ctx context.Context, name string) (string, error) {
	// AlreadyExists means the local copy is current.
	if err := t.client.Fetch(ctx, name); err != nil && status.Code(err) != codes.AlreadyExists {
		return "", err
	}
	path, err := t.localPath(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *toolset) deleteFile(ctx context.Context, name string) (string, error) {
	if err := t.client.Delete(ctx, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %s", name), nil
}

func (t *toolset) writeLock(ctx context.Context, name string) (string, error) {
	if err := t.client.RequestWriteLock(ctx, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Write lock held on %s by %s", name, t.client.ClientID()), nil
}

func (t *toolset) statFile(ctx context.Context, name string) (string, error) {
	r, err := t.client.Stat(ctx, name)
	if err != nil {
		return "", err
	}
	return formatRecord(r), nil
}

func (t *toolset) listFiles(ctx context.Context) (string, error) {
	records, err := t.client.List(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "No files stored", nil
	}

	var b strings.Builder
	b.WriteString("Stored files:\n")
	for _, r := range records {
		b.WriteString("- ")
		b.WriteString(formatRecord(r))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func formatRecord(r file_record.FileRecord) string {
	return fmt.Sprintf("%s: %d bytes, modified %s, checksum %s",
		r.Name, r.Size, time.Unix(r.Mtime, 0).UTC().Format(time.RFC3339), r.Checksum)
}
