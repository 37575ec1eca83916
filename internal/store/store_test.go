package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("backdrop_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	first := Session{ID: "a", Mode: "blur-background", Model: "meet-full", Width: 640, Height: 480}
	if err := s.StartSession(ctx, first); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	// Keep started_at values distinct so ordering is deterministic
	time.Sleep(10 * time.Millisecond)
	second := Session{ID: "b", Mode: "snowflakes", Model: "mlkit", Background: "bg.png", Width: 320, Height: 240}
	if err := s.StartSession(ctx, second); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := s.StartSession(ctx, first); err == nil {
		t.Error("Expected duplicate session ID to be rejected")
	}

	if err := s.FinishSession(ctx, "a", 300, 12.5); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}
	if err := s.FinishSession(ctx, "missing", 1, 1); err == nil {
		t.Error("Expected error finishing an unknown session")
	}

	sessions, err := s.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "b" {
		t.Errorf("Expected newest session first, got %s", sessions[0].ID)
	}
	if sessions[0].FinishedAt != nil {
		t.Error("Session b was never finished")
	}
	if got := sessions[1]; got.Frames != 300 || got.MeanFrameMs != 12.5 || got.FinishedAt == nil {
		t.Errorf("Unexpected finished session: %+v", got)
	}

	limited, err := s.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("ListSessions with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 session with limit, got %d", len(limited))
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListSessions(ctx, 0); err == nil {
		t.Error("Expected query on dropped table to fail")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
