package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
	"github.com/chunkmesh-network/chunkmesh/internal/health"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/chunkserver"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/reputation"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/store"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/swarm"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

// Supervisor binds the peer together: one chunk store and one
// reputation store shared by the chunk server and every downloader, a
// persistent control connection to the tracker, and the registry of
// download jobs.
type Supervisor struct {
	cfg      Config
	id       string
	port     int
	behavior chunkserver.Behavior

	store      *store.Store
	rep        *reputation.Store
	server     *chunkserver.Server
	downloader *swarm.Downloader
	checker    *health.Checker
	cancel     context.CancelFunc

	// The tracker control socket is owned by the supervisor: only one
	// request is outstanding at a time, guarded by trackerMu.
	trackerMu   sync.Mutex
	trackerSock net.Conn
	trackerConn *wire.Conn

	jobsMu  sync.Mutex
	active  map[string]*swarm.Job
	history []domain.JobState

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New assembles a supervisor from configuration. The identity is
// loaded (or minted) from the chunkmesh home, and the storage
// directory peer_storage_<id> is created beneath it.
func New(cfg Config, behavior chunkserver.Behavior) (*Supervisor, error) {
	return NewAt(Home(), cfg, behavior)
}

// NewAt is New rooted at an explicit home directory.
func NewAt(home string, cfg Config, behavior chunkserver.Behavior) (*Supervisor, error) {
	id, err := LoadOrCreateIdentity(home)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	baseDir := filepath.Join(home, "peer_storage_"+id)
	st, err := store.Open(baseDir)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	rep, err := reputation.Open(baseDir)
	if err != nil {
		return nil, fmt.Errorf("open reputation store: %w", err)
	}

	s := &Supervisor{
		cfg:      cfg,
		id:       id,
		behavior: behavior,
		store:    st,
		rep:      rep,
		active:   make(map[string]*swarm.Job),
		quit:     make(chan struct{}),
	}
	s.server = chunkserver.New(st, behavior, cfg.Peer.ChunkSize,
		parseDuration(cfg.Peer.AcceptTimeout, time.Second))
	s.downloader = swarm.New(st, rep, s, swarm.Config{
		SelfID:       id,
		Workers:      cfg.Peer.Workers,
		ChunkSize:    cfg.Peer.ChunkSize,
		ChunkTimeout: parseDuration(cfg.Peer.ChunkTimeout, 15*time.Second),
	})
	s.checker = health.NewChecker(baseDir, st.DownloadsDir(), cfg.Tracker.Addr())

	log.Printf("[daemon] peer %s initialized (storage: %s)", id, baseDir)
	return s, nil
}

// ID returns the peer's stable identity.
func (s *Supervisor) ID() string { return s.id }

// Port returns the chunk server's bound port.
func (s *Supervisor) Port() int { return s.port }

// Start binds the chunk server, registers with the tracker, and kicks
// off the periodic re-registration loop.
func (s *Supervisor) Start() error {
	port, err := s.server.Listen()
	if err != nil {
		return err
	}
	s.port = port

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.server.Serve()
	}()

	if err := s.Register(); err != nil {
		// The tracker may come up later; the periodic loop retries.
		log.Printf("[daemon] initial registration failed: %v", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reregisterLoop()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.checker.Run(ctx)
	}()
	return nil
}

// Stop shuts the peer down: stop accepting, close the tracker socket,
// and let in-flight work drain. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.cancel != nil {
			s.cancel()
		}
		s.server.Close()

		s.trackerMu.Lock()
		s.closeTrackerLocked()
		s.trackerMu.Unlock()

		s.wg.Wait()
		s.rep.Close()
		log.Printf("[daemon] peer %s has shut down", s.id)
	})
}

// ─── Tracker Communication ──────────────────────────────────────────────────

func (s *Supervisor) reregisterLoop() {
	interval := parseDuration(s.cfg.Peer.ReregisterInterval, 30*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if err := s.Register(); err != nil {
				log.Printf("[daemon] periodic registration failed: %v", err)
			}
		}
	}
}

// ensureTrackerLocked dials the tracker if no control connection is
// open. Callers hold trackerMu.
func (s *Supervisor) ensureTrackerLocked() error {
	if s.trackerConn != nil {
		return nil
	}
	timeout := parseDuration(s.cfg.Peer.TrackerTimeout, 10*time.Second)
	sock, err := net.DialTimeout("tcp", s.cfg.Tracker.Addr(), timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTrackerUnavailable, err)
	}
	s.trackerSock = sock
	s.trackerConn = wire.NewConn(sock)
	log.Printf("[daemon] connected to tracker at %s", s.cfg.Tracker.Addr())
	return nil
}

func (s *Supervisor) closeTrackerLocked() {
	if s.trackerConn != nil {
		s.trackerConn.Close()
		s.trackerConn = nil
		s.trackerSock = nil
	}
}

// roundTrip sends one request on the control connection and decodes
// the reply into out. Any failure closes the socket so the next call
// reconnects.
func (s *Supervisor) roundTrip(command string, payload any, out any) error {
	s.trackerMu.Lock()
	defer s.trackerMu.Unlock()

	if err := s.ensureTrackerLocked(); err != nil {
		return err
	}

	req, err := wire.NewRequest(command, payload)
	if err != nil {
		return err
	}

	timeout := parseDuration(s.cfg.Peer.TrackerTimeout, 10*time.Second)
	s.trackerSock.SetDeadline(time.Now().Add(timeout))
	defer s.trackerSock.SetDeadline(time.Time{})

	if err := s.trackerConn.Send(req); err != nil {
		s.closeTrackerLocked()
		return fmt.Errorf("send %s: %w", command, err)
	}
	if err := s.trackerConn.Receive(out); err != nil {
		s.closeTrackerLocked()
		return fmt.Errorf("receive %s reply: %w", command, err)
	}
	return nil
}

// Register announces this peer and its shared files to the tracker.
// Repeated registration is a refresh.
func (s *Supervisor) Register() error {
	payload := wire.RegisterPayload{
		PeerID: s.id,
		Port:   s.port,
		Files:  s.store.SharedFiles(),
	}

	var reply wire.Reply
	if err := s.roundTrip(wire.CmdRegister, payload, &reply); err != nil {
		return err
	}
	if !reply.OK() {
		return fmt.Errorf("tracker rejected registration: %s", reply.Message)
	}
	return nil
}

// Announce satisfies the swarm.Tracker interface: a completed download
// re-registers so the file is advertised.
func (s *Supervisor) Announce() error { return s.Register() }

// QueryFile asks the tracker who holds a file.
func (s *Supervisor) QueryFile(hash string) (wire.QueryFileReply, error) {
	var reply wire.QueryFileReply
	err := s.roundTrip(wire.CmdQueryFile, wire.QueryFilePayload{FileHash: hash}, &reply)
	return reply, err
}

// Search asks the tracker for files whose name matches the query.
func (s *Supervisor) Search(query string) ([]wire.SearchResult, error) {
	var reply wire.SearchReply
	if err := s.roundTrip(wire.CmdSearch, wire.SearchPayload{Query: query}, &reply); err != nil {
		return nil, err
	}
	return reply.Results, nil
}

// ─── Control Interface ──────────────────────────────────────────────────────

// Share hashes a local file, registers it as fully owned, and
// announces it to the tracker.
func (s *Supervisor) Share(path string) (domain.FileDescriptor, error) {
	desc, err := s.store.AddShare(path, s.cfg.Peer.ChunkSize)
	if err != nil {
		return domain.FileDescriptor{}, err
	}
	if err := s.Register(); err != nil {
		log.Printf("[daemon] announce after share failed: %v", err)
	}
	return desc, nil
}

// Download starts a download job for a file hash. dest, when
// non-empty, is where the finished file is copied.
func (s *Supervisor) Download(hash, dest string) error {
	s.jobsMu.Lock()
	if _, running := s.active[hash]; running {
		s.jobsMu.Unlock()
		return fmt.Errorf("download of %s already in progress", hash)
	}
	job := swarm.NewJob(hash)
	s.active[hash] = job
	s.jobsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.downloader.Run(job, dest)

		s.jobsMu.Lock()
		delete(s.active, hash)
		// Newest finished job first.
		s.history = append([]domain.JobState{job.State()}, s.history...)
		s.jobsMu.Unlock()
	}()
	return nil
}

// ─── Observation Interface ──────────────────────────────────────────────────

// MyFiles returns every descriptor this peer tracks.
func (s *Supervisor) MyFiles() []domain.FileDescriptor {
	return s.store.SharedFiles()
}

// Downloads snapshots the active jobs and the finished history,
// newest first.
func (s *Supervisor) Downloads() (map[string]domain.JobState, []domain.JobState) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	active := make(map[string]domain.JobState, len(s.active))
	for hash, job := range s.active {
		active[hash] = job.State()
	}
	history := make([]domain.JobState, len(s.history))
	copy(history, s.history)
	return active, history
}

// Health returns the latest self-check results.
func (s *Supervisor) Health() []health.Status {
	return s.checker.Statuses()
}

// Reputations returns this peer's view of every peer it has
// interacted with.
func (s *Supervisor) Reputations() []reputation.Entry {
	entries, err := s.rep.All()
	if err != nil {
		log.Printf("[daemon] read reputations: %v", err)
		return nil
	}
	return entries
}
