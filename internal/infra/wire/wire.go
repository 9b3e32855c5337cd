// Package wire frames the messages exchanged with the tracker and
// between peers. A message is one UTF-8 JSON object on a TCP stream
// with no length prefix; a successful chunk reply is followed by the
// raw chunk bytes on the same stream.
//
// The receiver scans for the smallest prefix of the stream that parses
// as a single JSON value. Any bytes already read past that prefix are
// the first bytes of the payload.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
)

// MaxHeaderBytes caps how much of the stream the chunk reply header
// parser may consume before giving up.
const MaxHeaderBytes = 2 * 1024

// ─── Commands ───────────────────────────────────────────────────────────────

const (
	CmdRegister     = "register"
	CmdQueryFile    = "query_file"
	CmdSearch       = "search"
	CmdRequestChunk = "request_chunk"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ─── Requests ───────────────────────────────────────────────────────────────

// Request is the envelope for every tracker-bound and peer-bound
// command. The payload is decoded per command.
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// RegisterPayload announces a peer and the files it holds.
type RegisterPayload struct {
	PeerID string                  `json:"peer_id"`
	Port   int                     `json:"port"`
	Files  []domain.FileDescriptor `json:"files"`
}

// QueryFilePayload asks who holds a file.
type QueryFilePayload struct {
	FileHash string `json:"file_hash"`
}

// SearchPayload asks for files whose name contains the query.
type SearchPayload struct {
	Query string `json:"query"`
}

// ChunkRequestPayload asks a peer for one chunk of a file.
type ChunkRequestPayload struct {
	FileHash   string `json:"file_hash"`
	ChunkIndex int    `json:"chunk_index"`
}

// NewRequest wraps a payload in a command envelope.
func NewRequest(command string, payload any) (Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("marshal %s payload: %w", command, err)
	}
	return Request{Command: command, Payload: raw}, nil
}

// ─── Replies ────────────────────────────────────────────────────────────────

// Reply is the generic status/message response.
type Reply struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the reply carries a success status.
func (r Reply) OK() bool { return r.Status == StatusSuccess }

// QueryFileReply answers a query_file command.
type QueryFileReply struct {
	Status      string            `json:"status"`
	Message     string            `json:"message,omitempty"`
	FileName    string            `json:"file_name,omitempty"`
	FileSize    int64             `json:"file_size,omitempty"`
	ChunkCount  int               `json:"chunk_count,omitempty"`
	ChunkHashes []string          `json:"chunk_hashes,omitempty"`
	Peers       []domain.PeerInfo `json:"peers,omitempty"`
}

// OK reports whether the reply carries a success status.
func (r QueryFileReply) OK() bool { return r.Status == StatusSuccess }

// SearchResult is one per-file summary in a search reply.
type SearchResult struct {
	Hash    string `json:"hash"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Seeders int    `json:"seeders"`
}

// SearchReply answers a search command.
type SearchReply struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Results []SearchResult `json:"results"`
}

// ChunkReplyHeader precedes the raw chunk bytes of a successful
// request_chunk reply. On failure only the header is sent.
type ChunkReplyHeader struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	ChunkSize int    `json:"chunk_size,omitempty"`
}

// ─── Framing ────────────────────────────────────────────────────────────────

// WriteMessage encodes v as one JSON object and writes it to w.
func WriteMessage(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads exactly one JSON object from r into v. It is meant
// for streams where nothing follows the object (tracker traffic and
// inbound peer requests); use ReadChunkHeader when a payload may trail.
func ReadMessage(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// ReadChunkHeader reads one JSON object from r into v and returns any
// over-read bytes, which are the first bytes of the chunk payload. The
// scan is capped at MaxHeaderBytes; past that the stream is declared
// invalid.
func ReadChunkHeader(r io.Reader, v any) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: MaxHeaderBytes}
	dec := json.NewDecoder(lr)
	if err := dec.Decode(v); err != nil {
		if lr.N == 0 {
			return nil, domain.ErrHeaderTooLarge
		}
		return nil, fmt.Errorf("decode chunk header: %w", err)
	}
	trailing, err := io.ReadAll(dec.Buffered())
	if err != nil {
		return nil, fmt.Errorf("drain header buffer: %w", err)
	}
	return trailing, nil
}

// ReadPayload assembles a chunk payload of exactly size bytes: the
// bytes over-read by the header scan first, the rest from the stream.
func ReadPayload(r io.Reader, trailing []byte, size int) ([]byte, error) {
	if len(trailing) > size {
		return nil, fmt.Errorf("payload overrun: got %d bytes past a %d byte chunk", len(trailing), size)
	}
	data := make([]byte, size)
	n := copy(data, trailing)
	if _, err := io.ReadFull(r, data[n:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, domain.ErrShortPayload
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

// ─── Persistent connections ─────────────────────────────────────────────────

// Conn wraps a long-lived stream (the tracker control connection) so
// that successive reads share one decoder: bytes buffered past a parsed
// object are kept for the next message instead of being lost.
type Conn struct {
	rw  io.ReadWriteCloser
	dec *json.Decoder
}

// NewConn wraps an established stream.
func NewConn(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw, dec: json.NewDecoder(rw)}
}

// Send writes one message.
func (c *Conn) Send(v any) error {
	return WriteMessage(c.rw, v)
}

// Receive reads the next message into v.
func (c *Conn) Receive(v any) error {
	return c.dec.Decode(v)
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rw.Close()
}
