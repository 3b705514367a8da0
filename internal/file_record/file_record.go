// Package file_record computes the change-detection view of a file: size,
// modification time and a content checksum. Records are computed on demand
// and never cached.
package file_record

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/AnishMulay/sandsync/internal/transfer"
	"github.com/zeebo/blake3"
)

// ChecksumSize is the hex length of every checksum.
const ChecksumSize = 64

type FileRecord struct {
	Name     string `yaml:"name"`
	Size     int64  `yaml:"size"`
	Mtime    int64  `yaml:"mtime"`
	Checksum string `yaml:"checksum,omitempty"`
}

// SameContent reports whether both records carry checksums and they match.
func (r FileRecord) SameContent(other FileRecord) bool {
	return r.Checksum != "" && r.Checksum == other.Checksum
}

func wrap(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("%w: %s: %v", ErrIO, path, err)
}

// Checksum returns the hex BLAKE3-256 digest of the file content.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", wrap(path, err)
	}
	defer f.Close()

	return ChecksumReader(f)
}

// ChecksumReader digests everything r yields.
func ChecksumReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumBytes digests an in-memory buffer.
func ChecksumBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest accumulates a checksum over data seen incrementally, such as the
// chunks of a transfer as they are written.
type Digest struct {
	h *blake3.Hasher
}

func NewDigest() *Digest {
	return &Digest{h: blake3.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the hex checksum of everything written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Mtime returns the modification time of path in unix seconds.
func Mtime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, wrap(path, err)
	}
	return info.ModTime().Unix(), nil
}

// Stat builds the full record for path, reported under name.
func Stat(path, name string) (FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileRecord{}, wrap(path, err)
	}
	if !info.Mode().IsRegular() {
		return FileRecord{}, fmt.Errorf("%w: %s", ErrNotFile, path)
	}

	sum, err := Checksum(path)
	if err != nil {
		return FileRecord{}, err
	}

	return FileRecord{
		Name:     name,
		Size:     info.Size(),
		Mtime:    info.ModTime().Unix(),
		Checksum: sum,
	}, nil
}

// ScanDir lists the regular files directly inside dir, sorted by name.
// Directories and in-flight transfer temp files are skipped. Files that
// vanish between the listing and the stat are skipped as well.
func ScanDir(dir string, withChecksum bool) ([]FileRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrap(dir, err)
	}

	records := make([]FileRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || transfer.IsTempName(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, wrap(name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		rec := FileRecord{Name: name, Size: info.Size(), Mtime: info.ModTime().Unix()}
		if withChecksum {
			sum, err := Checksum(filepath.Join(dir, name))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			rec.Checksum = sum
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Index keys records by name.
func Index(records []FileRecord) map[string]FileRecord {
	out := make(map[string]FileRecord, len(records))
	for _, r := range records {
		out[r.Name] = r
	}
	return out
}
