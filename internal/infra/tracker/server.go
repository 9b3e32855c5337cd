package tracker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

// Server accepts peer control connections and serves the tracker
// protocol, one goroutine per connection. A connection handles any
// number of commands; when it closes, the peer it registered is
// deregistered.
type Server struct {
	idx     *Index
	bufSize int

	ln   net.Listener
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewServer creates a tracker server over the given index. bufSize is
// the per-connection read buffer size.
func NewServer(idx *Index, bufSize int) *Server {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &Server{idx: idx, bufSize: bufSize, quit: make(chan struct{})}
}

// Listen binds the tracker to addr (host:port).
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tracker listen %s: %w", addr, err)
	}
	s.ln = ln
	log.Printf("[tracker] listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve runs the accept loop until Close is called.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			log.Printf("[tracker] accept: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Close stops accepting, closes the listener, and waits for in-flight
// handlers to drain.
func (s *Server) Close() {
	close(s.quit)
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
}

// handle serves one peer's control connection.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	clientIP, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		log.Printf("[tracker] bad remote address %q: %v", conn.RemoteAddr(), err)
		return
	}

	// One decoder per connection: bytes buffered past a parsed message
	// belong to the next one.
	dec := json.NewDecoder(bufio.NewReaderSize(conn, s.bufSize))

	var peerID string
	defer func() {
		if peerID != "" {
			s.idx.Deregister(peerID)
		}
	}()

	for {
		var req wire.Request
		if err := dec.Decode(&req); err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Printf("[tracker] %s: decode: %v", conn.RemoteAddr(), err)
			}
			return
		}

		var reply any
		switch req.Command {
		case wire.CmdRegister:
			var p wire.RegisterPayload
			if err := json.Unmarshal(req.Payload, &p); err != nil || p.PeerID == "" {
				reply = wire.Reply{Status: wire.StatusError, Message: "malformed register payload"}
				break
			}
			peerID = p.PeerID
			s.idx.Register(p, clientIP)
			reply = wire.Reply{Status: wire.StatusSuccess, Message: "Registered successfully"}

		case wire.CmdQueryFile:
			var p wire.QueryFilePayload
			if err := json.Unmarshal(req.Payload, &p); err != nil || p.FileHash == "" {
				reply = wire.Reply{Status: wire.StatusError, Message: "malformed query payload"}
				break
			}
			reply = s.idx.QueryFile(p.FileHash)

		case wire.CmdSearch:
			var p wire.SearchPayload
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				reply = wire.Reply{Status: wire.StatusError, Message: "malformed search payload"}
				break
			}
			results := s.idx.Search(p.Query)
			if results == nil {
				results = []wire.SearchResult{}
			}
			reply = wire.SearchReply{Status: wire.StatusSuccess, Results: results}

		default:
			reply = wire.Reply{Status: wire.StatusError, Message: "Unknown command"}
		}

		if err := wire.WriteMessage(conn, reply); err != nil {
			log.Printf("[tracker] %s: reply: %v", conn.RemoteAddr(), err)
			return
		}
	}
}
