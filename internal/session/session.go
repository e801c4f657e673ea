// Package session owns the lifecycle of one upload-to-export cycle: it
// validates input, drives the background worker, collects slice buffers into
// the resource tracker, and exposes the selection set to callers.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/splitshot/splitshot/internal/export"
	"github.com/splitshot/splitshot/internal/resources"
	"github.com/splitshot/splitshot/internal/slicer"
	"github.com/splitshot/splitshot/internal/worker"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Limits bounds the user-configurable slice height.
type Limits struct {
	MinSliceHeight int
	MaxSliceHeight int
}

func DefaultLimits() Limits {
	return Limits{MinSliceHeight: 100, MaxSliceHeight: 5000}
}

// SliceMeta is the UI-visible description of one slice. The buffer itself
// stays in the resource tracker; DisplayHandle is the revocable reference.
type SliceMeta struct {
	Index         int
	Width         int
	Height        int
	DisplayHandle string
	Filled        bool
}

// Snapshot is a read-only projection of the session for callers. Slices and
// Selection are copies; mutating them does not touch the session.
type Snapshot struct {
	ID           string
	Filename     string
	State        State
	Progress     int
	SourceWidth  int
	SourceHeight int
	SliceHeight  int
	Slices       []SliceMeta
	Selection    []int
	Err          string
	CreatedAt    time.Time
}

// Controller is the single source of truth for one session. All mutation
// happens under its mutex; worker messages are consumed by one dispatch
// goroutine per run, and a generation counter fences off messages from
// cancelled runs.
type Controller struct {
	id        string
	limits    Limits
	createdAt time.Time

	mu          sync.Mutex
	state       State
	filename    string
	srcWidth    int
	srcHeight   int
	sliceHeight int
	progress    int
	slices      []SliceMeta
	filled      int
	selection   map[int]bool
	lastErr     string

	tracker    *resources.Tracker
	generation uint64
	cancel     context.CancelFunc
	runDone    chan struct{}
}

func New(id string, limits Limits) *Controller {
	return &Controller{
		id:        id,
		limits:    limits,
		createdAt: time.Now(),
		state:     StateIdle,
		tracker:   resources.New(),
	}
}

func (c *Controller) ID() string { return c.id }

// ProcessImage validates input synchronously, then starts a background run.
// A run already in flight is cancelled first: only the latest upload matters,
// and at most one resource generation is ever live.
func (c *Controller) ProcessImage(data []byte, filename string, sliceHeight int) error {
	if sliceHeight < c.limits.MinSliceHeight || sliceHeight > c.limits.MaxSliceHeight {
		return &ValidationError{
			Field:  "slice_height",
			Reason: fmt.Sprintf("%d outside allowed range [%d, %d]", sliceHeight, c.limits.MinSliceHeight, c.limits.MaxSliceHeight),
		}
	}
	format, width, height, err := slicer.Sniff(data)
	if err != nil {
		return &ValidationError{Field: "file", Reason: "not a supported image (png, jpeg, gif, webp)"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.tracker.Clear()

	c.state = StateProcessing
	c.filename = filename
	c.srcWidth = width
	c.srcHeight = height
	c.sliceHeight = sliceHeight
	c.progress = 0
	c.slices = nil
	c.filled = 0
	c.selection = nil
	c.lastErr = ""

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	ch := worker.New(c.generation)
	ch.Start(ctx, worker.Input{Data: data, SliceHeight: sliceHeight})

	done := make(chan struct{})
	c.runDone = done
	go c.dispatch(ch, done)

	slog.Info("Processing started",
		"session_id", c.id,
		"filename", filename,
		"format", format,
		"width", width,
		"height", height,
		"slice_height", sliceHeight,
		"generation", c.generation)
	return nil
}

// dispatch consumes one worker channel until it closes. Messages from a
// generation that is no longer current are dropped on the floor.
func (c *Controller) dispatch(ch *worker.Channel, done chan struct{}) {
	defer close(done)

	terminal := false
	for msg := range ch.Messages() {
		switch m := msg.(type) {
		case worker.Started:
			c.onStarted(m)
		case worker.Progress:
			c.onProgress(m)
		case worker.Chunk:
			c.onChunk(m)
		case worker.Done:
			terminal = true
			c.onDone(m)
		case worker.Failure:
			terminal = true
			c.onFailure(m)
		}
	}

	if !terminal {
		c.onChannelLoss(ch.Generation())
	}
}

func (c *Controller) onStarted(m worker.Started) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Generation != c.generation || c.state != StateProcessing {
		return
	}

	c.slices = make([]SliceMeta, m.SliceCount)
	for i := range c.slices {
		c.slices[i].Index = i
	}
	c.filled = 0
	c.tracker.Reserve(m.SliceCount)
}

func (c *Controller) onProgress(m worker.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Generation != c.generation || c.state != StateProcessing {
		return
	}
	// Progress never decreases within one run.
	if m.Percent > c.progress {
		c.progress = m.Percent
	}
}

func (c *Controller) onChunk(m worker.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Generation != c.generation {
		return
	}
	if c.state != StateProcessing {
		c.failLocked(fmt.Sprintf("%v: chunk %d arrived in state %s", ErrProtocolViolation, m.Index, c.state))
		return
	}
	if c.slices == nil || m.Index != c.filled || m.Index >= len(c.slices) {
		c.failLocked(fmt.Sprintf("%v: expected chunk %d, got %d of %d", ErrProtocolViolation, c.filled, m.Index, len(c.slices)))
		return
	}

	handle, err := c.tracker.Put(m.Index, m.Data, m.Width, m.Height)
	if err != nil {
		c.failLocked(fmt.Sprintf("%v: %v", ErrProtocolViolation, err))
		return
	}

	c.slices[m.Index] = SliceMeta{
		Index:         m.Index,
		Width:         m.Width,
		Height:        m.Height,
		DisplayHandle: handle,
		Filled:        true,
	}
	c.filled++
}

func (c *Controller) onDone(m worker.Done) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Generation != c.generation {
		return
	}
	if c.state != StateProcessing {
		c.failLocked(fmt.Sprintf("%v: done arrived in state %s", ErrProtocolViolation, c.state))
		return
	}
	if c.filled != len(c.slices) || len(c.slices) == 0 {
		c.failLocked(fmt.Sprintf("%v: done with %d of %d slices filled", ErrProtocolViolation, c.filled, len(c.slices)))
		return
	}

	c.progress = 100
	c.state = StateReady
	// Default to everything selected; the export UI expects "select all".
	c.selection = make(map[int]bool, len(c.slices))
	for i := range c.slices {
		c.selection[i] = true
	}

	slog.Info("Processing complete", "session_id", c.id, "slices", len(c.slices))
}

func (c *Controller) onFailure(m worker.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Generation != c.generation || c.state != StateProcessing {
		return
	}

	slog.Error("Processing failed", "session_id", c.id, "kind", string(m.Kind), "error", m.Message)
	c.failLocked(m.Message)
}

// onChannelLoss handles a channel that closed without a terminal message:
// the transport equivalent of a worker crash. Cancelled runs also end this
// way, but by then the generation has moved on.
func (c *Controller) onChannelLoss(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation || c.state != StateProcessing {
		return
	}

	slog.Error("Worker channel closed unexpectedly", "session_id", c.id, "generation", generation)
	c.failLocked("worker channel closed unexpectedly")
}

// failLocked moves the session to Error and discards partial results so
// stale state never reaches selection or export. Caller holds the mutex.
func (c *Controller) failLocked(message string) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateError
	c.lastErr = message
	c.slices = nil
	c.filled = 0
	c.selection = nil
	c.tracker.Clear()
}

// UpdateSelection replaces the selection set. Valid only in Ready; any
// out-of-range index rejects the whole update with no state change.
func (c *Controller) UpdateSelection(indices []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}

	next := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(c.slices) {
			return &ValidationError{Field: "indices", Reason: fmt.Sprintf("index %d outside [0, %d)", i, len(c.slices))}
		}
		next[i] = true
	}
	c.selection = next
	return nil
}

// ToggleIndex flips one slice in or out of the selection.
func (c *Controller) ToggleIndex(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	if index < 0 || index >= len(c.slices) {
		return &ValidationError{Field: "index", Reason: fmt.Sprintf("index %d outside [0, %d)", index, len(c.slices))}
	}
	if c.selection[index] {
		delete(c.selection, index)
	} else {
		c.selection[index] = true
	}
	return nil
}

func (c *Controller) SelectAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	for i := range c.slices {
		c.selection[i] = true
	}
	return nil
}

func (c *Controller) DeselectAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	c.selection = make(map[int]bool, len(c.slices))
	return nil
}

// ExportSelection writes the selected slices to w in ascending index order,
// regardless of the order indices were selected in. The session stays Ready
// on sink failure so the user can retry without re-processing.
func (c *Controller) ExportSelection(ctx context.Context, format export.Format, w io.Writer, onProgress func(percent int)) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrNotReady
	}
	if len(c.selection) == 0 {
		c.mu.Unlock()
		return ErrNoSelection
	}

	indices := make([]int, 0, len(c.selection))
	for i := range c.selection {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	items := make([]export.Item, 0, len(indices))
	for _, i := range indices {
		entry, ok := c.tracker.Get(i)
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: selected slice %d has no buffer", ErrProtocolViolation, i)
		}
		items = append(items, export.Item{
			Index:  entry.Index,
			Data:   entry.Data,
			Width:  entry.Width,
			Height: entry.Height,
		})
	}
	c.mu.Unlock()

	// Buffers are immutable once registered, so export can run outside the
	// lock without racing a concurrent re-process.
	return export.Export(ctx, format, items, w, onProgress)
}

// ResolveHandle returns the buffer behind a display handle, if it is still
// live. Used by the HTTP layer to serve slice previews.
func (c *Controller) ResolveHandle(handle string) (*resources.Entry, bool) {
	return c.tracker.Resolve(handle)
}

// Wait blocks until the current run's dispatch loop exits, or ctx ends.
// Returns immediately when nothing is running.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.runDone
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset returns the session to Idle from any state, releasing all resources.
// Idempotent.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.tracker.Clear()

	c.state = StateIdle
	c.filename = ""
	c.srcWidth = 0
	c.srcHeight = 0
	c.sliceHeight = 0
	c.progress = 0
	c.slices = nil
	c.filled = 0
	c.selection = nil
	c.lastErr = ""
	c.runDone = nil
}

// Close tears the session down. The controller must not be reused after.
func (c *Controller) Close() {
	c.Reset()
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	slices := make([]SliceMeta, len(c.slices))
	copy(slices, c.slices)

	selection := make([]int, 0, len(c.selection))
	for i := range c.selection {
		selection = append(selection, i)
	}
	sort.Ints(selection)

	return Snapshot{
		ID:           c.id,
		Filename:     c.filename,
		State:        c.state,
		Progress:     c.progress,
		SourceWidth:  c.srcWidth,
		SourceHeight: c.srcHeight,
		SliceHeight:  c.sliceHeight,
		Slices:       slices,
		Selection:    selection,
		Err:          c.lastErr,
		CreatedAt:    c.createdAt,
	}
}
