package health

import (
	"context"
	"net"
	"testing"
)

func TestChecker_AllHealthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	dir := t.TempDir()
	c := NewChecker(dir, dir, ln.Addr().String())
	c.runAll(context.Background())

	if !c.IsHealthy() {
		t.Errorf("checker unhealthy: %+v", c.Statuses())
	}
	if len(c.Statuses()) != 3 {
		t.Errorf("statuses = %d, want 3", len(c.Statuses()))
	}
}

func TestChecker_MissingDir(t *testing.T) {
	c := NewChecker("/no/such/dir", t.TempDir(), "127.0.0.1:1")
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Error("checker should be unhealthy with a missing storage dir")
	}

	var storageStatus *Status
	for _, s := range c.Statuses() {
		if s.Name == "storage_dir" {
			status := s
			storageStatus = &status
		}
	}
	if storageStatus == nil || storageStatus.Healthy {
		t.Errorf("storage_dir status = %+v, want unhealthy", storageStatus)
	}
}

func TestChecker_AddCheck(t *testing.T) {
	dir := t.TempDir()
	c := NewChecker(dir, dir, "127.0.0.1:1") // tracker check will fail
	called := false
	c.AddCheck(Check{
		Name: "custom",
		CheckFn: func(ctx context.Context) error {
			called = true
			return nil
		},
	})
	c.runAll(context.Background())

	if !called {
		t.Error("custom check never ran")
	}
	if len(c.Statuses()) != 4 {
		t.Errorf("statuses = %d, want 4", len(c.Statuses()))
	}
}
