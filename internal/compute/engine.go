package compute

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/countentropy/countentropy/internal/collector"
	"github.com/countentropy/countentropy/pkg/entropy"
)

// uptimeWindow is the number of recent collection outcomes tracked for uptime %.
const uptimeWindow = 20

// Result states.
const (
	// StateOK means the entropy was computed.
	StateOK = "ok"
	// StateInvalid means the source delivered counts the estimator rejects
	// (non-integral type or records that are not single-field).
	StateInvalid = "invalid"
	// StateUnknown means the collection itself failed.
	StateUnknown = "unknown"
)

// Result is the entropy snapshot for one source, ready for the store.
type Result struct {
	SourceID   string
	SourceType string
	Timestamp  time.Time
	State      string
	Base       string

	Entropy    float64
	MaxEntropy float64 // ln(Categories) in Base
	Normalized float64 // Entropy / MaxEntropy, 0 with fewer than two categories
	Categories int     // counts with positive mass
	Total      int64   // clamped sum of all counts
	Partials   int     // number of partial bags folded

	UptimePct    float64
	ErrorMessage string // non-empty unless State is "ok"
}

// Engine turns collections into Results. It keeps one estimator and one
// uptime history per source.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	states map[string]*sourceState
}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{states: make(map[string]*sourceState)}
}

// Register sets the estimator used for a source. The base token is parsed
// here, so an unknown base fails before the first collection.
// Re-registering a source keeps its uptime history.
func (e *Engine) Register(sourceID, base string) error {
	est, err := entropy.New(base)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateFor(sourceID).estimator = est
	return nil
}

// Forget drops all state for a source that is no longer configured.
func (e *Engine) Forget(sourceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, sourceID)
}

// Process folds the partial bags of col into one entropy value.
//
// now is passed explicitly so callers (and tests) control the clock.
// Sources that were never registered use the natural log.
func (e *Engine) Process(col *collector.Collection, now time.Time) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(col.SourceID)
	if st.estimator == nil {
		st.estimator = entropy.NewWithBase(entropy.Natural)
	}
	base := st.estimator.Base()

	out := &Result{
		SourceID:   col.SourceID,
		SourceType: col.SourceType,
		Timestamp:  now,
		Base:       base.String(),
	}

	if col.Err != nil {
		out.State = stateForError(col.Err)
		st.recordCollection(out.State != StateUnknown)
		out.UptimePct = st.uptimePct()
		out.ErrorMessage = col.Err.Error()
		slog.Warn("compute: collection failed",
			"source", col.SourceID, "state", out.State, "err", col.Err)
		return out
	}
	st.recordCollection(true)
	out.UptimePct = st.uptimePct()

	acc := st.estimator.NewAccumulator()
	for _, bag := range col.Bags {
		if err := acc.Accumulate(bag); err != nil {
			out.State = StateInvalid
			out.ErrorMessage = err.Error()
			slog.Warn("compute: bag rejected", "source", col.SourceID, "err", err)
			return out
		}
	}

	out.State = StateOK
	out.Entropy = acc.Finalize()
	out.Categories = acc.Categories()
	out.Total = acc.Total()
	out.Partials = len(col.Bags)
	out.MaxEntropy = entropy.MaxEntropy(out.Categories, base)
	if out.MaxEntropy > 0 {
		out.Normalized = out.Entropy / out.MaxEntropy
	}
	return out
}

// stateForError classifies a collection failure. Schema errors raised while
// reading records mean the data is malformed, not that the source is down.
func stateForError(err error) string {
	var shapeErr *entropy.SchemaShapeError
	var typeErr *entropy.SchemaTypeError
	if errors.As(err, &shapeErr) || errors.As(err, &typeErr) {
		return StateInvalid
	}
	return StateUnknown
}

// sourceState holds the estimator and collection history of one source.
type sourceState struct {
	estimator *entropy.Estimator
	history   []bool // outcomes, newest last
}

func (e *Engine) stateFor(id string) *sourceState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sourceState{}
	e.states[id] = st
	return st
}

func (st *sourceState) recordCollection(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *sourceState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
