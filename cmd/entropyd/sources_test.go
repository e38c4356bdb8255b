package main

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/countentropy/countentropy/internal/collector"
	"github.com/countentropy/countentropy/internal/compute"
	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/pkg/entropy"
)

func writeCounts(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func fileSource(id, base string, paths ...string) config.Source {
	return config.Source{ID: id, Type: config.SourceFile, Base: base, Paths: paths, Schema: []string{"long"}}
}

func TestSourceSet_CollectInConfigOrder(t *testing.T) {
	dir := t.TempDir()
	uniform := writeCounts(t, dir, "uniform.tsv", "5\n5\n5\n5\n")
	skewed := writeCounts(t, dir, "skewed.tsv", "1\n1\n3\n1\n2\n1\n1\n")

	set := newSourceSet(compute.NewEngine())
	set.apply(&config.Config{Sources: []config.Source{
		fileSource("uniform", "log2", uniform),
		fileSource("skewed", "", skewed),
	}})
	defer set.close()

	if set.len() != 2 {
		t.Fatalf("len: got %d, want 2", set.len())
	}

	results := set.collect(context.Background(), time.Now())
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if results[0].SourceID != "uniform" || results[1].SourceID != "skewed" {
		t.Fatalf("order: got %s, %s", results[0].SourceID, results[1].SourceID)
	}
	if results[0].State != compute.StateOK || math.Abs(results[0].Entropy-2) > 1e-12 {
		t.Errorf("uniform: got state=%s entropy=%v, want ok/2", results[0].State, results[0].Entropy)
	}
	if math.Abs(results[1].Entropy-1.8343719702816237) > 1e-9 {
		t.Errorf("skewed: got %v", results[1].Entropy)
	}
}

func TestSourceSet_ReloadDropsRemovedSources(t *testing.T) {
	dir := t.TempDir()
	a := writeCounts(t, dir, "a.tsv", "1\n2\n")
	b := writeCounts(t, dir, "b.tsv", "3\n4\n")

	set := newSourceSet(compute.NewEngine())
	set.apply(&config.Config{Sources: []config.Source{fileSource("a", "", a), fileSource("b", "", b)}})
	set.apply(&config.Config{Sources: []config.Source{fileSource("b", "log10", b)}})
	defer set.close()

	results := set.collect(context.Background(), time.Now())
	if len(results) != 1 || results[0].SourceID != "b" {
		t.Fatalf("results after reload: %+v", results)
	}
	if results[0].Base != "log10" {
		t.Errorf("base: got %q, want log10", results[0].Base)
	}
}

func TestSourceSet_SkipsBadBase(t *testing.T) {
	dir := t.TempDir()
	a := writeCounts(t, dir, "a.tsv", "1\n")

	set := newSourceSet(compute.NewEngine())
	set.apply(&config.Config{Sources: []config.Source{fileSource("a", "log3", a)}})
	if set.len() != 0 {
		t.Errorf("len: got %d, want 0", set.len())
	}
}

func TestSourceSet_DefaultBase(t *testing.T) {
	dir := t.TempDir()
	a := writeCounts(t, dir, "a.tsv", "1\n1\n")

	set := newSourceSet(compute.NewEngine())
	set.apply(&config.Config{DefaultBase: "log2", Sources: []config.Source{fileSource("a", "", a)}})
	defer set.close()

	res := set.collect(context.Background(), time.Now())
	if len(res) != 1 || res[0].Base != "log2" || math.Abs(res[0].Entropy-1) > 1e-12 {
		t.Errorf("got %+v, want log2 entropy 1", res)
	}
}

// blockingCollector holds Collect open until release is closed and fails
// the collection if it was closed meanwhile, like a pooled DB handle.
type blockingCollector struct {
	id      string
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	closed bool
}

func (b *blockingCollector) Collect(_ context.Context) (*collector.Collection, error) {
	close(b.started)
	<-b.release

	col := &collector.Collection{SourceID: b.id, SourceType: config.SourcePostgres, CollectedAt: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		col.Err = errors.New("sql: database is closed")
		return col, nil
	}
	col.Bags = []entropy.Bag{entropy.NewBag(1, 1)}
	return col, nil
}

func (b *blockingCollector) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *blockingCollector) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func TestSourceSet_ReloadWaitsForInFlightCollection(t *testing.T) {
	bc := &blockingCollector{id: "pg", started: make(chan struct{}), release: make(chan struct{})}

	set := newSourceSet(compute.NewEngine())
	set.build = func(src config.Source) (collector.Collector, error) { return bc, nil }
	set.apply(&config.Config{Sources: []config.Source{{ID: "pg", Type: config.SourcePostgres}}})

	results := make(chan []*compute.Result, 1)
	go func() { results <- set.collect(context.Background(), time.Now()) }()
	<-bc.started

	applied := make(chan struct{})
	go func() {
		set.apply(&config.Config{})
		close(applied)
	}()

	select {
	case <-applied:
		t.Fatal("reload finished while a collection was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	if bc.isClosed() {
		t.Fatal("collector closed while collecting")
	}

	close(bc.release)
	res := <-results
	if len(res) != 1 || res[0].State != compute.StateOK {
		t.Fatalf("in-flight result = %+v, want one ok result", res)
	}
	if res[0].UptimePct != 100 {
		t.Errorf("uptime = %v, want 100", res[0].UptimePct)
	}

	select {
	case <-applied:
	case <-time.After(5 * time.Second):
		t.Fatal("reload did not finish after the collection completed")
	}
	if !bc.isClosed() {
		t.Error("removed collector was not closed by the reload")
	}
	if set.len() != 0 {
		t.Errorf("len after reload = %d, want 0", set.len())
	}
}
