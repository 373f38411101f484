// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johndosdos/chatrelay/internal/store"
)

var memSeq atomic.Int64

// MemoryStore opens a migrated in-memory SQLite store that is closed when
// the test ends. Every call gets its own database.
func MemoryStore(t testing.TB) *store.SQLite {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("file:chatrelay-test-%d?mode=memory&cache=shared", memSeq.Add(1))
	s, err := store.OpenSQLite(ctx, url)
	if err != nil {
		t.Fatalf("store.OpenSQLite() error = %+v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("store.Close() error = %+v", err)
		}
	})
	return s
}
