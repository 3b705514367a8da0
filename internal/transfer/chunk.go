// Package transfer moves a file as an ordered sequence of bounded chunks and
// reassembles it on the receiving side through a temporary sibling file, so
// the destination is only ever replaced by a complete copy.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultChunkSize bounds each transfer unit. Both ends must agree on it;
// receivers accept any chunk up to the bound.
const DefaultChunkSize = 64 * 1024

const (
	tempMarker = ".sandsync-"
	tempSuffix = ".tmp"
)

// IsTempName reports whether a base name belongs to an in-flight transfer.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, tempMarker) && strings.HasSuffix(name, tempSuffix)
}

// SendFunc delivers one encoded chunk payload to the peer.
type SendFunc func(payload []byte) error

// SendFile reads r in chunkSize pieces and passes each encoded piece to send,
// in order. It returns the number of raw bytes read from r.
func SendFile(ctx context.Context, r io.Reader, chunkSize int, codec *Codec, send SendFunc) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	buf := make([]byte, chunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			payload, encErr := codec.Encode(buf[:n])
			if encErr != nil {
				return total, encErr
			}
			if sendErr := send(payload); sendErr != nil {
				return total, sendErr
			}
			total += int64(n)
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
	}
}
