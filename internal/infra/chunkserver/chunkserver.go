// Package chunkserver serves chunk requests from other peers. Each
// inbound connection carries exactly one request_chunk command and is
// closed after the reply.
//
// A behavior policy, fixed at startup, controls how the server
// answers. Only Honest belongs in production; Refusing and Corrupting
// exist so adversarial swarm scenarios are reproducible in tests.
package chunkserver

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/chunkmesh-network/chunkmesh/internal/infra/metrics"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/store"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

// Behavior selects how the server answers chunk requests.
type Behavior string

const (
	Honest     Behavior = "honest"
	Refusing   Behavior = "refusing"
	Corrupting Behavior = "corrupting"
)

// ParseBehavior validates a behavior name.
func ParseBehavior(s string) (Behavior, error) {
	switch Behavior(s) {
	case Honest, Refusing, Corrupting:
		return Behavior(s), nil
	}
	return "", fmt.Errorf("unknown behavior %q", s)
}

// Server answers request_chunk commands from the local chunk store.
type Server struct {
	store         *store.Store
	behavior      Behavior
	chunkSize     int
	acceptTimeout time.Duration

	ln   net.Listener
	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a chunk server over the given store.
func New(st *store.Store, behavior Behavior, chunkSize int, acceptTimeout time.Duration) *Server {
	if acceptTimeout <= 0 {
		acceptTimeout = time.Second
	}
	return &Server{
		store:         st,
		behavior:      behavior,
		chunkSize:     chunkSize,
		acceptTimeout: acceptTimeout,
		quit:          make(chan struct{}),
	}
}

// Listen binds to an OS-chosen free port on the loopback interface and
// returns the port other peers should be told about.
func (s *Server) Listen() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("bind chunk server: %w", err)
	}
	s.ln = ln
	port := ln.Addr().(*net.TCPAddr).Port
	log.Printf("[chunkserver] listening on %s [behavior: %s]", ln.Addr(), s.behavior)
	return port, nil
}

// Serve accepts connections until Close is called. The accept deadline
// is short so shutdown is noticed promptly.
func (s *Server) Serve() {
	tcpLn := s.ln.(*net.TCPListener)
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		tcpLn.SetDeadline(time.Now().Add(s.acceptTimeout))
		conn, err := tcpLn.Accept()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			select {
			case <-s.quit:
				return
			default:
			}
			log.Printf("[chunkserver] accept: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Close stops accepting and waits for in-flight handlers to drain.
func (s *Server) Close() {
	close(s.quit)
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
}

// handle serves one chunk request and closes the connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	var req wire.Request
	if err := wire.ReadMessage(conn, &req); err != nil {
		log.Printf("[chunkserver] %s: decode: %v", conn.RemoteAddr(), err)
		return
	}
	if req.Command != wire.CmdRequestChunk {
		wire.WriteMessage(conn, wire.ChunkReplyHeader{Status: wire.StatusError, Message: "Unknown command"})
		return
	}

	var p wire.ChunkRequestPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		wire.WriteMessage(conn, wire.ChunkReplyHeader{Status: wire.StatusError, Message: "malformed payload"})
		return
	}

	switch s.behavior {
	case Refusing:
		wire.WriteMessage(conn, wire.ChunkReplyHeader{Status: wire.StatusError, Message: "Refused"})
		return

	case Corrupting:
		garbage := make([]byte, s.chunkSize)
		rand.Read(garbage)
		if err := wire.WriteMessage(conn, wire.ChunkReplyHeader{Status: wire.StatusSuccess, ChunkSize: len(garbage)}); err != nil {
			return
		}
		conn.Write(garbage)
		log.Printf("[chunkserver] sent corrupt chunk %d to %s", p.ChunkIndex, conn.RemoteAddr())
		return
	}

	data, err := s.store.ReadChunk(p.FileHash, p.ChunkIndex, s.chunkSize)
	if err != nil {
		log.Printf("[chunkserver] read chunk %s.%d: %v", shortHash(p.FileHash), p.ChunkIndex, err)
		wire.WriteMessage(conn, wire.ChunkReplyHeader{Status: wire.StatusError, Message: "Not found"})
		return
	}
	if data == nil {
		wire.WriteMessage(conn, wire.ChunkReplyHeader{Status: wire.StatusError, Message: "Not found"})
		return
	}

	if err := wire.WriteMessage(conn, wire.ChunkReplyHeader{Status: wire.StatusSuccess, ChunkSize: len(data)}); err != nil {
		return
	}
	if _, err := conn.Write(data); err != nil {
		log.Printf("[chunkserver] send chunk %d to %s: %v", p.ChunkIndex, conn.RemoteAddr(), err)
		return
	}

	metrics.ChunksServed.Inc()
	log.Printf("[chunkserver] sent chunk %d (%d bytes) to %s", p.ChunkIndex, len(data), conn.RemoteAddr())
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}
