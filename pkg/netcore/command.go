package netcore

import "github.com/google/uuid"

// ReplySink is a send-once slot a Command carries for its result. The
// reactor never blocks on it: it resolves the sink synchronously (for
// Track/Untrack) or defers resolution until a later event (for
// Fetch, whose result depends on a FetchProject completion reported
// back in via command). Host implementations typically back this with
// a buffered channel of capacity one; Protocol only ever calls Resolve
// once per sink, so any runtime panicking on a double-send will never
// fire.
type ReplySink interface {
	Resolve(value any)
}

// CommandId correlates a Command with the FetchResult (or other
// deferred outcome) eventually reported back to the reactor, the way a
// real daemon API tags a request so its response can find its way back
// to the right caller.
type CommandId = uuid.UUID

// NewCommandId mints a fresh correlation id for a Command about to be
// submitted to the reactor.
func NewCommandId() CommandId { return uuid.New() }

// CommandKind discriminates the variants of Command.
type CommandKind string

const (
	CmdTrack             CommandKind = "track"
	CmdUntrack           CommandKind = "untrack"
	CmdConnect           CommandKind = "connect"
	CmdFetch             CommandKind = "fetch"
	CmdAnnounceInventory CommandKind = "announce_inventory"
	// CmdFetchCompleted is not issued by a user; the host reports it back
	// into the reactor when an external FetchProject intent finishes, so
	// the original Fetch command's reply sink can be resolved.
	CmdFetchCompleted CommandKind = "fetch_completed"
)

// Command is a locally issued instruction delivered synchronously to
// the reactor via Protocol.Command.
type Command struct {
	Kind CommandKind

	// Proj is set for Track, Untrack, and Fetch.
	Proj ProjId

	// Addr is set for Connect.
	Addr string

	// Reply receives the command's result. Nil is valid for
	// AnnounceInventory and Connect, which have nothing meaningful to
	// report back.
	Reply ReplySink

	// FetchId correlates a CmdFetchCompleted report with the Fetch
	// command that triggered the underlying FetchProject intent.
	FetchId CommandId

	// FetchResult carries the outcome for CmdFetchCompleted.
	FetchResult FetchResult
}

// FetchResult is the outcome of an on-demand or command-driven project
// fetch, reported back into the reactor by the external git-fetch
// collaborator once it completes.
type FetchResult struct {
	Proj ProjId
	Ok   bool
	Err  string
}

func TrackCommand(proj ProjId, reply ReplySink) Command {
	return Command{Kind: CmdTrack, Proj: proj, Reply: reply}
}

func UntrackCommand(proj ProjId, reply ReplySink) Command {
	return Command{Kind: CmdUntrack, Proj: proj, Reply: reply}
}

func ConnectCommand(addr string) Command {
	return Command{Kind: CmdConnect, Addr: addr}
}

func FetchCommand(proj ProjId, reply ReplySink) Command {
	return Command{Kind: CmdFetch, Proj: proj, Reply: reply, FetchId: NewCommandId()}
}

func AnnounceInventoryCommand() Command {
	return Command{Kind: CmdAnnounceInventory}
}
