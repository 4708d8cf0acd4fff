// Package testutil provides shared test helpers for stores, inbox directories
// and asynchronous assertions.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/storage"
)

// TestStore creates a temporary document store that is automatically cleaned up.
func TestStore(t *testing.T, opts ...docstore.Option) *docstore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "intelboard-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	s, err := docstore.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestDir creates a temporary directory with a storage.FS rooted at it.
func TestDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	return dir, fs
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
