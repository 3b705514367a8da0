package communication

// StoreChunk is one client-to-server message of a Store stream. The first
// message is the header and carries the file metadata with no data; every
// following message carries only Data.
type StoreChunk struct {
	Filename    string `cbor:"filename,omitempty"`
	Checksum    string `cbor:"checksum,omitempty"`
	Mtime       int64  `cbor:"mtime,omitempty"`
	Size        int64  `cbor:"size,omitempty"`
	Compression string `cbor:"compression,omitempty"`
	Data        []byte `cbor:"data,omitempty"`
}

// StoreReply is sent twice on a successful Store: once with Ready after the
// header is accepted, and once with Done after the file is committed.
type StoreReply struct {
	Ready    bool   `cbor:"ready,omitempty"`
	Done     bool   `cbor:"done,omitempty"`
	Filename string `cbor:"filename,omitempty"`
	Mtime    int64  `cbor:"mtime,omitempty"`
	Size     int64  `cbor:"size,omitempty"`
	Checksum string `cbor:"checksum,omitempty"`
}

// FetchRequest.Checksum and Mtime describe the caller's copy and are empty
// when it has none.
type FetchRequest struct {
	Filename    string `cbor:"filename"`
	Checksum    string `cbor:"checksum,omitempty"`
	Mtime       int64  `cbor:"mtime,omitempty"`
	Compression string `cbor:"compression,omitempty"`
}

// FetchChunk is one server-to-client message of a Fetch stream. Only the
// first message carries metadata.
type FetchChunk struct {
	Filename    string `cbor:"filename,omitempty"`
	Mtime       int64  `cbor:"mtime,omitempty"`
	Size        int64  `cbor:"size,omitempty"`
	Checksum    string `cbor:"checksum,omitempty"`
	Compression string `cbor:"compression,omitempty"`
	Data        []byte `cbor:"data,omitempty"`
}

type DeleteRequest struct {
	Filename string `cbor:"filename"`
	ClientID string `cbor:"client_id"`
}

type DeleteResponse struct {
	Filename string `cbor:"filename"`
}

type StatRequest struct {
	Filename string `cbor:"filename"`
}

type StatResponse struct {
	Filename string `cbor:"filename"`
	Size     int64  `cbor:"size"`
	Mtime    int64  `cbor:"mtime"`
	Checksum string `cbor:"checksum"`
}

type ListRequest struct{}

type FileEntry struct {
	Filename string `cbor:"filename"`
	Size     int64  `cbor:"size"`
	Mtime    int64  `cbor:"mtime"`
	Checksum string `cbor:"checksum"`
}

// ListResponse is the full server listing together with the change version
// it reflects.
type ListResponse struct {
	Files   []FileEntry `cbor:"files"`
	Version uint64      `cbor:"version"`
}

type WriteLockRequest struct {
	Filename string `cbor:"filename"`
	ClientID string `cbor:"client_id"`
}

// WriteLockResponse.ExpiresAt is in unix milliseconds.
type WriteLockResponse struct {
	Filename  string `cbor:"filename"`
	ExpiresAt int64  `cbor:"expires_at"`
}

// ReleaseWriteLockResponse.Released is false when the caller did not hold the
// lease or one of its mutating calls still does.
type ReleaseWriteLockResponse struct {
	Released bool `cbor:"released"`
}

// CallbackListRequest asks the server to reply once its change version moves
// past Version.
type CallbackListRequest struct {
	ClientID string `cbor:"client_id"`
	Version  uint64 `cbor:"version"`
}
