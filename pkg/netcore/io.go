package netcore

import "time"

// IoKind discriminates the variants of Io.
type IoKind string

const (
	IoConnect      IoKind = "connect"
	IoDisconnect   IoKind = "disconnect"
	IoWrite        IoKind = "write"
	IoSetTimer     IoKind = "set_timer"
	IoFetchProject IoKind = "fetch_project"
	IoCommandReply IoKind = "command_reply"
)

// Io is one instruction the reactor hands back to its host after an
// entry point returns. The core never performs I/O itself; every
// externally visible effect — dialing, writing bytes, tearing down a
// connection, scheduling a wakeup, invoking the fetch collaborator, or
// resolving a one-shot command reply — is expressed as a value here and
// drained from the outbox by the caller.
type Io struct {
	Kind IoKind

	// Addr identifies the connection this intent concerns, for Connect,
	// Disconnect, Write, and FetchProject.
	Addr string

	// Reason is set for Disconnect.
	Reason DisconnectReason

	// Bytes is the wire frame to write, for Write.
	Bytes []byte

	// Duration is the requested delay before the next tick, for SetTimer.
	Duration time.Duration

	// GitURL and Proj are set for FetchProject: the advertiser's git
	// transport URL and the project to fetch from it.
	GitURL string
	Proj   ProjId

	// FetchId is set for FetchProject: the correlation id the host must
	// echo back in the CmdFetchCompleted command once the fetch finishes,
	// so the reactor can resolve the right pending reply sink. Zero
	// (uuid.Nil) for an on-demand fetch nothing is waiting on.
	FetchId CommandId

	// Reply and Value are set for CommandReply: the one-shot slot to
	// resolve and the value to resolve it with.
	Reply ReplySink
	Value any
}

func ioConnect(addr string) Io { return Io{Kind: IoConnect, Addr: addr} }

func ioDisconnect(addr string, reason DisconnectReason) Io {
	return Io{Kind: IoDisconnect, Addr: addr, Reason: reason}
}

func ioWrite(addr string, bytes []byte) Io {
	return Io{Kind: IoWrite, Addr: addr, Bytes: bytes}
}

func ioSetTimer(d time.Duration) Io { return Io{Kind: IoSetTimer, Duration: d} }

func ioFetchProject(addr, gitURL string, proj ProjId, fetchId CommandId) Io {
	return Io{Kind: IoFetchProject, Addr: addr, GitURL: gitURL, Proj: proj, FetchId: fetchId}
}

func ioCommandReply(reply ReplySink, value any) Io {
	return Io{Kind: IoCommandReply, Reply: reply, Value: value}
}

// outbox accumulates Io intents produced while handling a single entry
// point call, drained by Protocol.Outbox after each call.
type outbox struct {
	items []Io
}

func (o *outbox) push(items ...Io) { o.items = append(o.items, items...) }

// drain returns and clears the accumulated intents.
func (o *outbox) drain() []Io {
	items := o.items
	o.items = nil
	return items
}
