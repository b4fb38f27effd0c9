package proto

import (
	"encoding/json"
	"fmt"

	"armada/server/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for outbound websocket payloads.
	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeHeartbeat     = "heartbeat"
	typeState         = "state"
	typeJoin          = "join"
)

// Client message type identifiers.
const (
	TypeSetGoal   = "setGoal"
	TypeClearGoal = "clearGoal"
	TypeHeartbeat = "heartbeat"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeState = typeState
	TypeJoin  = typeJoin
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver        int     `json:"ver,omitempty"`
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	SentAt     int64   `json:"sentAt"`
	Ack        *uint64 `json:"ack"`
	CommandSeq *uint64 `json:"seq,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// ClientCommand captures the structured simulation command carried by a
// websocket message. Origin metadata is populated by the hub when the command
// is accepted for processing.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	switch msg.Type {
	case TypeSetGoal:
		return sim.Command{
			Type: sim.CommandSetGoal,
			SetGoal: &sim.SetGoalCommand{
				TargetX: msg.X,
				TargetY: msg.Y,
			},
		}, true
	case TypeClearGoal:
		return sim.Command{Type: sim.CommandClearGoal}, true
	default:
		return sim.Command{}, false
	}
}

// CommandAck describes an acknowledgement of a processed command.
type CommandAck struct {
	Seq  uint64
	Tick uint64
}

// EncodeCommandAck renders a command acknowledgement response.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	frame := struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
		Tick uint64 `json:"tick,omitempty"`
	}{
		Ver:  Version,
		Type: typeCommandAck,
		Seq:  msg.Seq,
	}
	if msg.Tick > 0 {
		frame.Tick = msg.Tick
	}
	return json.Marshal(frame)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Seq    uint64
	Reason string
	Retry  bool
	Tick   uint64
}

// EncodeCommandReject renders a command rejection response.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
		Tick   uint64 `json:"tick,omitempty"`
	}{
		Ver:    Version,
		Type:   typeCommandReject,
		Seq:    msg.Seq,
		Reason: msg.Reason,
	}
	if msg.Retry {
		frame.Retry = true
	}
	if msg.Tick > 0 {
		frame.Tick = msg.Tick
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
		RTTMillis  int64  `json:"rtt"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// StateSnapshotV1 captures the version 1 websocket state payload layout.
type StateSnapshotV1 struct {
	Ver        int                `json:"ver"`
	Type       string             `json:"type"`
	Tick       uint64             `json:"tick"`
	ServerTime int64              `json:"serverTime"`
	Ships      []sim.ShipSnapshot `json:"ships"`
	Removed    []string           `json:"removed,omitempty"`
}

// NewStateSnapshotV1 stamps the version and type fields onto a state payload.
func NewStateSnapshotV1(tick uint64, serverTime int64, ships []sim.ShipSnapshot, removed []string) StateSnapshotV1 {
	return StateSnapshotV1{
		Ver:        Version,
		Type:       typeState,
		Tick:       tick,
		ServerTime: serverTime,
		Ships:      ships,
		Removed:    removed,
	}
}

// EncodeStateSnapshot renders a state payload.
func EncodeStateSnapshot(msg StateSnapshotV1) ([]byte, error) {
	return json.Marshal(msg)
}

// JoinResponseV1 captures the version 1 join payload layout.
type JoinResponseV1 struct {
	Ver         int                `json:"ver"`
	Type        string             `json:"type"`
	ID          string             `json:"id"`
	Tick        uint64             `json:"tick"`
	TickRate    int                `json:"tickRate"`
	WorldWidth  float64            `json:"worldWidth"`
	WorldHeight float64            `json:"worldHeight"`
	Ships       []sim.ShipSnapshot `json:"ships"`
}

// NewJoinResponseV1 stamps the version and type fields onto a join payload.
func NewJoinResponseV1(id string, tick uint64, tickRate int, width, height float64, ships []sim.ShipSnapshot) JoinResponseV1 {
	return JoinResponseV1{
		Ver:         Version,
		Type:        typeJoin,
		ID:          id,
		Tick:        tick,
		TickRate:    tickRate,
		WorldWidth:  width,
		WorldHeight: height,
		Ships:       ships,
	}
}

// EncodeJoinResponse renders a join payload.
func EncodeJoinResponse(msg JoinResponseV1) ([]byte, error) {
	return json.Marshal(msg)
}
