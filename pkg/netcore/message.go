package netcore

// Envelope is the outermost wire object: a network-magic tag wrapping
// exactly one Message. Every frame on the wire is one Envelope.
type Envelope struct {
	Magic uint32  `json:"magic"`
	Msg   Message `json:"msg"`
}

// Message is the closed set of application messages exchanged over a
// negotiated or negotiating connection. Exactly one of the pointer
// fields is non-nil; MessageType reports which.
//
// Rust's original represents this as a tagged enum (Message::Hello {
// ... }, Message::Inventory { ... }, ...); Go has no sum type, so this
// module uses the same "one struct, one non-nil field per variant"
// shape this module's own JSON-RPC-ish wire types use elsewhere, with a
// discriminator string for unambiguous JSON round-tripping.
type Message struct {
	Type MessageType `json:"type"`

	Hello        *HelloMsg        `json:"hello,omitempty"`
	GetInventory *GetInventoryMsg `json:"get_inventory,omitempty"`
	Inventory    *InventoryMsg    `json:"inventory,omitempty"`
	GetRefs      *GetRefsMsg      `json:"get_refs,omitempty"`
	Refs         *RefsMsg         `json:"refs,omitempty"`
	Ping         *PingMsg         `json:"ping,omitempty"`
	Pong         *PongMsg         `json:"pong,omitempty"`
	Disconnect   *DisconnectMsg   `json:"disconnect,omitempty"`
}

// MessageType discriminates which field of Message is populated.
type MessageType string

const (
	MsgHello        MessageType = "hello"
	MsgGetInventory MessageType = "get_inventory"
	MsgInventory    MessageType = "inventory"
	MsgGetRefs      MessageType = "get_refs"
	MsgRefs         MessageType = "refs"
	MsgPing         MessageType = "ping"
	MsgPong         MessageType = "pong"
	MsgDisconnect   MessageType = "disconnect"
)

// HelloMsg is sent once per side immediately after a connection is
// established, carrying the sender's identity, a freshness timestamp,
// its advertised listen addresses, its git transport URL, the protocol
// version it speaks, and a signature over
// (magic ‖ timestamp ‖ version ‖ id) binding the message to this network
// and this sender.
type HelloMsg struct {
	Id        PeerId   `json:"id"`
	Timestamp uint64   `json:"timestamp"`
	Addrs     []string `json:"addrs"`
	GitURL    string   `json:"git_url"`
	Version   uint32   `json:"version"`
	Signature []byte   `json:"signature"`
}

// GetInventoryMsg requests the inventories for the listed projects, or
// (when Ids is empty) the peer's entire inventory.
type GetInventoryMsg struct {
	Ids []ProjId `json:"ids"`
}

// ProjSummary is one project's presence announcement: its id and the
// refs the advertiser holds for it, enough for a receiving peer to
// decide whether it wants to fetch.
type ProjSummary struct {
	Id   ProjId           `json:"id"`
	Refs map[RefName]Oid  `json:"refs,omitempty"`
}

// InventoryMsg advertises or relays a set of projects. Origin is nil
// when the sender is advertising its own inventory, and set to the
// original advertiser's PeerId when this message is a relay.
type InventoryMsg struct {
	Timestamp uint64        `json:"timestamp"`
	Inv       []ProjSummary `json:"inv"`
	Origin    *PeerId       `json:"origin,omitempty"`
}

// GetRefsMsg requests the current ref set for a single project.
type GetRefsMsg struct {
	Proj ProjId `json:"proj"`
}

// RefsMsg answers a GetRefsMsg with the responder's ref set for the
// project, signed so a relayed or cached copy can still be verified
// against the responder's identity.
type RefsMsg struct {
	Proj      ProjId          `json:"proj"`
	Refs      map[RefName]Oid `json:"refs"`
	Signature []byte          `json:"signature"`
}

// PingMsg carries an opaque nonce a live peer must echo back in a
// PongMsg within PingTimeout.
type PingMsg struct {
	Nonce uint64 `json:"nonce"`
}

// PongMsg echoes a PingMsg's nonce.
type PongMsg struct {
	Nonce uint64 `json:"nonce"`
}

// DisconnectMsg announces a graceful, voluntary termination with a
// human-readable reason string (distinct from the local DisconnectReason
// type, which is never itself put on the wire).
type DisconnectMsg struct {
	Reason string `json:"reason"`
}

func newHello(id PeerId, timestamp uint64, addrs []string, gitURL string, version uint32, sig []byte) Message {
	return Message{Type: MsgHello, Hello: &HelloMsg{Id: id, Timestamp: timestamp, Addrs: addrs, GitURL: gitURL, Version: version, Signature: sig}}
}

func newGetInventory(ids []ProjId) Message {
	return Message{Type: MsgGetInventory, GetInventory: &GetInventoryMsg{Ids: ids}}
}

func newInventory(timestamp uint64, inv []ProjSummary, origin *PeerId) Message {
	return Message{Type: MsgInventory, Inventory: &InventoryMsg{Timestamp: timestamp, Inv: inv, Origin: origin}}
}

func newGetRefs(proj ProjId) Message {
	return Message{Type: MsgGetRefs, GetRefs: &GetRefsMsg{Proj: proj}}
}

func newRefs(proj ProjId, refs map[RefName]Oid, sig []byte) Message {
	return Message{Type: MsgRefs, Refs: &RefsMsg{Proj: proj, Refs: refs, Signature: sig}}
}

func newPing(nonce uint64) Message { return Message{Type: MsgPing, Ping: &PingMsg{Nonce: nonce}} }
func newPong(nonce uint64) Message { return Message{Type: MsgPong, Pong: &PongMsg{Nonce: nonce}} }

func newDisconnect(reason string) Message {
	return Message{Type: MsgDisconnect, Disconnect: &DisconnectMsg{Reason: reason}}
}
