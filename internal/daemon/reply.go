package daemon

import (
	"context"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// chanReply is a netcore.ReplySink backed by a buffered channel, the
// pattern command.go's doc comment describes: Protocol resolves it
// exactly once, from the host loop's goroutine, and the API handler
// waiting on it never blocks that goroutine since the channel has room
// for the one value it will ever receive.
type chanReply struct {
	ch chan any
}

func newChanReply() *chanReply {
	return &chanReply{ch: make(chan any, 1)}
}

func (c *chanReply) Resolve(value any) {
	c.ch <- value
}

// await blocks until the sink resolves or ctx is canceled.
func (c *chanReply) await(ctx context.Context) (any, error) {
	select {
	case v := <-c.ch:
		return v, nil
	case <-ctx.Done():
		return nil, ErrCommandTimeout
	}
}

// submitAndWait submits cmd to h and waits for its reply, used by API
// handlers that need a synchronous result (Track, Untrack, Fetch).
func submitAndWait(ctx context.Context, h *Host, cmd netcore.Command) (any, error) {
	sink := newChanReply()
	cmd.Reply = sink
	h.Submit(cmd)
	return sink.await(ctx)
}
