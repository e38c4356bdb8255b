package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/countentropy/countentropy/internal/collector"
	"github.com/countentropy/countentropy/internal/compute"
	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/pkg/entropy"
)

// pipeline is one configured source and its collector.
type pipeline struct {
	src  config.Source
	base string
	c    collector.Collector
}

// sourceSet holds the active pipelines and swaps them on config reload.
//
// A collection cycle holds mu for reading until every result is processed;
// apply and close take it for writing. Old collectors are therefore never
// closed, and removed sources never forgotten, while a cycle uses them.
type sourceSet struct {
	engine *compute.Engine
	build  func(config.Source) (collector.Collector, error)

	mu        sync.RWMutex
	pipelines map[string]pipeline
	order     []string
}

func newSourceSet(engine *compute.Engine) *sourceSet {
	return &sourceSet{
		engine:    engine,
		build:     collector.New,
		pipelines: make(map[string]pipeline),
	}
}

// apply rebuilds every pipeline from cfg. Sources that fail to build are
// skipped; sources no longer configured are forgotten by the engine.
// It blocks until an in-flight collection cycle has finished.
func (s *sourceSet) apply(cfg *config.Config) {
	next := make(map[string]pipeline, len(cfg.Sources))
	order := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		base := src.EffectiveBase(cfg.DefaultBase)
		if _, err := entropy.ParseLogBase(base); err != nil {
			slog.Error("skipping source, bad log base", "source", src.ID, "err", err)
			continue
		}
		c, err := s.build(src)
		if err != nil {
			slog.Error("skipping source, could not build collector", "source", src.ID, "err", err)
			continue
		}
		next[src.ID] = pipeline{src: src, base: base, c: c}
		order = append(order, src.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range order {
		p := next[id]
		// The base was parsed above; Register cannot fail here.
		_ = s.engine.Register(id, p.base)
		slog.Info("registered source", "id", id, "type", p.src.Type, "base", p.base)
	}
	for id, p := range s.pipelines {
		if _, ok := next[id]; !ok {
			s.engine.Forget(id)
		}
		closeCollector(id, p.c)
	}
	s.pipelines, s.order = next, order
}

// collect runs one collection cycle over every pipeline, in config order.
func (s *sourceSet) collect(ctx context.Context, now time.Time) []*compute.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*compute.Result, 0, len(s.order))
	for _, id := range s.order {
		p := s.pipelines[id]
		col, err := p.c.Collect(ctx)
		if err != nil {
			slog.Warn("collect error", "source", id, "err", err)
			continue
		}
		out = append(out, s.engine.Process(col, now))
	}
	return out
}

func (s *sourceSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *sourceSet) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pipelines {
		closeCollector(id, p.c)
	}
	s.pipelines, s.order = map[string]pipeline{}, nil
}

func closeCollector(id string, c collector.Collector) {
	if cl, ok := c.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			slog.Warn("close collector", "source", id, "err", err)
		}
	}
}
