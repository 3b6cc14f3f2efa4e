package filegraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/toolwire/socialgraph"
	"github.com/ggoodman/toolwire/socialgraph/graphtest"
)

func TestFileGraph(t *testing.T) {
	graphtest.RunStoreTests(t, func(t *testing.T) socialgraph.Store {
		g, err := Open(filepath.Join(t.TempDir(), "graph.json"), nil)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return g
	})
}

func TestOpen_ParsesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte(`{"bob":["carol","alice","alice","bob"]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	g, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := g.Followers(context.Background(), "bob")
	if len(got) != 2 || got[0] != "alice" || got[1] != "carol" {
		t.Fatalf("unexpected followers: %v", got)
	}
}

func TestOpen_RejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	g, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"bob":["alice"]}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		got, _ := g.Followers(context.Background(), "bob")
		if len(got) == 1 && got[0] == "alice" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for reload, followers=%v", got)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}
