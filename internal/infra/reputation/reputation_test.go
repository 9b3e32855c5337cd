package reputation

import (
	"math"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ─── EWMA Law Tests ─────────────────────────────────────────────────────────

func TestRecord_CorruptedDataFromDefault(t *testing.T) {
	s := openTestStore(t)

	// 0.8*10 + 0.2*(-5) = 7.0
	s.Record("peer_bad", CorruptedData)
	if got := s.Score("peer_bad"); !almostEqual(got, 7.0) {
		t.Errorf("score after CORRUPTED_DATA = %v, want 7.0", got)
	}
}

func TestRecord_UploadThenIntegrity(t *testing.T) {
	s := openTestStore(t)

	// 0.8*10 + 0.2*3 = 8.6
	s.Record("peer_a", SuccessfulUpload)
	if got := s.Score("peer_a"); !almostEqual(got, 8.6) {
		t.Errorf("score after SUCCESSFUL_UPLOAD = %v, want 8.6", got)
	}

	// 0.8*8.6 + 0.2*2 = 7.28
	s.Record("peer_a", VerifiedIntegrity)
	if got := s.Score("peer_a"); !almostEqual(got, 7.28) {
		t.Errorf("score after VERIFIED_INTEGRITY = %v, want 7.28", got)
	}
}

func TestRecord_UnknownEventIgnored(t *testing.T) {
	s := openTestStore(t)

	s.Record("peer_x", Event("GENEROUS_TIP"))
	if got := s.Score("peer_x"); !almostEqual(got, DefaultScore) {
		t.Errorf("score = %v after unknown event, want untouched default", got)
	}

	entries, err := s.All()
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("unknown event should not create a record, got %v", entries)
	}
}

func TestRecord_InteractionCounter(t *testing.T) {
	s := openTestStore(t)

	s.Record("peer_a", SuccessfulDownload)
	s.Record("peer_a", VerifiedIntegrity)
	s.Record("peer_a", ConnectionTimeout)

	entries, err := s.All()
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Interactions != 3 {
		t.Errorf("interactions = %d, want 3", entries[0].Interactions)
	}
}

// ─── Ordering Tests ─────────────────────────────────────────────────────────

func TestOrder_ByScoreDescending(t *testing.T) {
	s := openTestStore(t)

	s.Record("peer_good", SuccessfulDownload) // 8.6
	s.Record("peer_bad", CorruptedData)       // 7.0
	// peer_new stays at the default 10.0

	order := s.Order([]string{"peer_bad", "peer_good", "peer_new"})
	want := []string{"peer_new", "peer_good", "peer_bad"}
	for i, id := range want {
		if order[i].PeerID != id {
			t.Errorf("order[%d] = %s, want %s (full: %v)", i, order[i].PeerID, id, order)
		}
	}
}

func TestOrder_StableForDefaultScores(t *testing.T) {
	s := openTestStore(t)

	input := []string{"peer_c", "peer_a", "peer_b"}
	order := s.Order(input)
	for i, id := range input {
		if order[i].PeerID != id {
			t.Errorf("order[%d] = %s, want input order preserved (%s)", i, order[i].PeerID, id)
		}
		if !almostEqual(order[i].Score, DefaultScore) {
			t.Errorf("order[%d].Score = %v, want default", i, order[i].Score)
		}
	}
}

// ─── Persistence Tests ──────────────────────────────────────────────────────

func TestPersistence_AcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.Record("peer_a", RefusedUpload) // 0.8*10 + 0.2*(-3) = 7.4
	s.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()

	if got := s2.Score("peer_a"); !almostEqual(got, 7.4) {
		t.Errorf("score after reopen = %v, want 7.4", got)
	}
}
