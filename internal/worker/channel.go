// Package worker runs the slice codec off the caller's goroutine and streams
// progress and per-slice results back over a typed message channel.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/splitshot/splitshot/internal/slicer"
)

// Input is the single request a channel processes.
type Input struct {
	Data        []byte
	SliceHeight int
}

// Channel is a one-shot worker run. Start may be called once; the message
// channel is closed after the terminal Done or Failure message, and a
// terminated channel must be discarded — the controller creates a fresh one
// per run.
type Channel struct {
	generation uint64
	messages   chan Message
}

func New(generation uint64) *Channel {
	return &Channel{
		generation: generation,
		messages:   make(chan Message, 16),
	}
}

func (c *Channel) Generation() uint64 { return c.generation }

// Messages is the receive side of the channel. It is closed once the run
// terminates, whether by Done, Failure, or context cancellation.
func (c *Channel) Messages() <-chan Message { return c.messages }

// Start launches the worker goroutine. Cancelling ctx stops the run between
// slices; no terminal message is emitted in that case, the channel just
// closes.
func (c *Channel) Start(ctx context.Context, in Input) {
	go c.run(ctx, in)
}

func (c *Channel) run(ctx context.Context, in Input) {
	defer close(c.messages)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker panicked", "generation", c.generation, "panic", r)
			c.send(ctx, Failure{
				Generation: c.generation,
				Kind:       FailureTransport,
				Message:    fmt.Sprintf("worker panic: %v", r),
			})
		}
	}()

	if !c.send(ctx, Progress{Generation: c.generation, Percent: 0}) {
		return
	}

	img, format, err := slicer.Decode(in.Data)
	if err != nil {
		c.send(ctx, Failure{Generation: c.generation, Kind: FailureDecode, Message: err.Error()})
		return
	}

	bounds := img.Bounds()
	regions, err := slicer.Plan(bounds.Dx(), bounds.Dy(), in.SliceHeight)
	if err != nil {
		c.send(ctx, Failure{Generation: c.generation, Kind: FailureDecode, Message: err.Error()})
		return
	}

	slog.Debug("Worker decoded image",
		"generation", c.generation,
		"format", format,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"slices", len(regions))

	if !c.send(ctx, Started{
		Generation: c.generation,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		SliceCount: len(regions),
	}) {
		return
	}

	for i, region := range regions {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := slicer.Render(img, region)
		if err != nil {
			// One bad slice fails the whole run; no partial results.
			c.send(ctx, Failure{Generation: c.generation, Kind: FailureEncode, Message: err.Error()})
			return
		}

		if !c.send(ctx, Chunk{
			Generation: c.generation,
			Index:      region.Index,
			Data:       data,
			Width:      region.Width,
			Height:     region.Height,
		}) {
			return
		}
		if !c.send(ctx, Progress{
			Generation: c.generation,
			Percent:    (i + 1) * 100 / len(regions),
		}) {
			return
		}
	}

	c.send(ctx, Done{Generation: c.generation})
}

// send delivers one message unless the run has been cancelled. Blocking here
// is what keeps an abandoned worker from leaking: the controller cancels the
// context when it stops reading.
func (c *Channel) send(ctx context.Context, msg Message) bool {
	select {
	case c.messages <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
