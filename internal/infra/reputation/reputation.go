// Package reputation maintains this peer's local opinion of other
// peers as an EWMA-smoothed score, persisted in SQLite. Scores bias
// peer ordering during downloads; there is no global or transitive
// reputation — every peer keeps its own view.
package reputation

import (
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/chunkmesh-network/chunkmesh/internal/infra/metrics"
)

// Event is one observed interaction kind.
type Event string

const (
	SuccessfulUpload   Event = "SUCCESSFUL_UPLOAD"
	SuccessfulDownload Event = "SUCCESSFUL_DOWNLOAD"
	VerifiedIntegrity  Event = "VERIFIED_INTEGRITY"
	ConnectionTimeout  Event = "CONNECTION_TIMEOUT"
	RefusedUpload      Event = "REFUSED_UPLOAD"
	CorruptedData      Event = "CORRUPTED_DATA"
)

// deltas maps each event to its reward or penalty.
var deltas = map[Event]float64{
	SuccessfulUpload:   3,
	SuccessfulDownload: 3,
	VerifiedIntegrity:  2,
	ConnectionTimeout:  -1,
	RefusedUpload:      -3,
	CorruptedData:      -5,
}

// EWMA parameters: score_new = alpha*score_old + beta*delta.
const (
	alpha        = 0.8
	beta         = 0.2
	DefaultScore = 10.0
)

// PeerScore pairs a peer id with its current score.
type PeerScore struct {
	PeerID string  `json:"peer_id"`
	Score  float64 `json:"score"`
}

// Entry is a full reputation record, for the observation surface.
type Entry struct {
	PeerID       string  `json:"peer_id"`
	Score        float64 `json:"score"`
	Interactions int     `json:"interactions"`
}

// Store is the SQLite-backed reputation table. One mutex covers reads,
// writes, and the batch sort used for peer ordering, so an ordering
// always reflects a single consistent snapshot.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens dir/reputation.db with WAL mode and a 5-second
// busy timeout, and runs the idempotent schema migration.
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "reputation.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS reputation (
		peer_id      TEXT PRIMARY KEY,
		score        REAL NOT NULL,
		interactions INTEGER NOT NULL
	)`)
	return err
}

// Close shuts down the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Record applies one interaction to a peer's score and bumps its
// interaction counter. Unknown event names are ignored with a warning.
func (s *Store) Record(peerID string, event Event) {
	delta, ok := deltas[event]
	if !ok {
		log.Printf("[reputation] unknown event type: %s", event)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldScore, interactions, err := s.lookupLocked(peerID)
	if err != nil {
		log.Printf("[reputation] lookup %s: %v", peerID, err)
		return
	}

	newScore := alpha*oldScore + beta*delta
	_, err = s.db.Exec(
		`INSERT INTO reputation (peer_id, score, interactions) VALUES (?, ?, ?)
		 ON CONFLICT(peer_id) DO UPDATE SET
			score=excluded.score,
			interactions=excluded.interactions`,
		peerID, newScore, interactions+1,
	)
	if err != nil {
		log.Printf("[reputation] update %s: %v", peerID, err)
		return
	}

	metrics.ReputationEvents.WithLabelValues(string(event)).Inc()
	log.Printf("[reputation] %s: %.2f -> %.2f (%s)", peerID, oldScore, newScore, event)
}

// lookupLocked returns the stored score and interaction count, or the
// defaults for a peer seen for the first time. Callers hold s.mu.
func (s *Store) lookupLocked(peerID string) (float64, int, error) {
	var score float64
	var interactions int
	err := s.db.QueryRow(
		`SELECT score, interactions FROM reputation WHERE peer_id = ?`, peerID,
	).Scan(&score, &interactions)
	if err == sql.ErrNoRows {
		return DefaultScore, 0, nil
	}
	if err != nil {
		return DefaultScore, 0, err
	}
	return score, interactions, nil
}

// Score returns a peer's current score, or the default for an unknown
// peer.
func (s *Store) Score(peerID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, _, err := s.lookupLocked(peerID)
	if err != nil {
		return DefaultScore
	}
	return score
}

// Order sorts the given peer ids by current score, descending. Unknown
// ids take the default score. Ties keep the input order.
func (s *Store) Order(peerIDs []string) []PeerScore {
	s.mu.Lock()
	defer s.mu.Unlock()

	scored := make([]PeerScore, 0, len(peerIDs))
	for _, id := range peerIDs {
		score, _, err := s.lookupLocked(id)
		if err != nil {
			score = DefaultScore
		}
		scored = append(scored, PeerScore{PeerID: id, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// All returns every reputation record, best first.
func (s *Store) All() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT peer_id, score, interactions FROM reputation ORDER BY score DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.PeerID, &e.Score, &e.Interactions); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
