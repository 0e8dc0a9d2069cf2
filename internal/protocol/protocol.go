// Package protocol defines the wire messages exchanged with relay
// controllers over UDP discovery and the TCP session, per the canonical
// plain-key, newline-delimited JSON form (earlier drafts used wrapped
// envelopes and short keys; those are not implemented here).
package protocol

// MessageType identifies the top-level "type" field of a frame.
type MessageType string

const (
	TypeAnnounce     MessageType = "announce"
	TypeAck          MessageType = "ack"
	TypeDeviceInfo   MessageType = "device_info"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeStatusUpdate MessageType = "status_update"
	TypeStatusAck    MessageType = "status_ack"
	TypeCommand      MessageType = "command"
)

// MaxDatagramSize bounds a single UDP discovery payload.
const MaxDatagramSize = 2048

// Envelope is decoded first to recover "type" before dispatching to a
// type-specific struct. A "version" field may be present in some peers;
// it is reserved, ignored on read, and never emitted.
type Envelope struct {
	Type MessageType `json:"type"`
}

// Announce is the inbound UDP discovery datagram.
type Announce struct {
	Type     MessageType `json:"type"`
	TargetID string      `json:"target_id"`
	IP       string      `json:"ip"`
}

// Ack is the outbound UDP discovery reply.
type Ack struct {
	Type     MessageType `json:"type"`
	ServerIP string      `json:"server_ip"`
	TCPPort  int         `json:"tcp_port"`
}

// Entry is one controllable thing declared by a controller.
type Entry struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	DeviceType   string `json:"device_type"`
	InitialState string `json:"initial_state,omitempty"`
}

// DeviceInfo is the TCP registration frame that binds a session to a
// target_id and declares its inventory.
type DeviceInfo struct {
	Type     MessageType `json:"type"`
	TargetID string      `json:"target_id"`
	Relays   []Entry     `json:"relays"`
}

// Heartbeat is the periodic TCP keep-alive frame. It carries no fields
// beyond type: the peer is already identified by the bound session.
type Heartbeat struct {
	Type MessageType `json:"type"`
}

// StatusUpdate reports a runtime state change for one inventory entry,
// matched by ID first and falling back to Label.
type StatusUpdate struct {
	Type  MessageType `json:"type"`
	ID    string      `json:"id,omitempty"`
	Label string      `json:"label,omitempty"`
	State string      `json:"state"`
}

// StatusAck is an optional server->peer confirmation emitted after a
// StatusUpdate is applied, purely informational, new wire surface this
// implementation adds on top of the mandated frames.
type StatusAck struct {
	Type  MessageType `json:"type"`
	ID    string      `json:"id"`
	State string      `json:"state"`
}

// CommandData is the payload of a Command frame.
type CommandData struct {
	DeviceType string `json:"device_type"`
	Label      string `json:"label"`
	State      string `json:"state"`
}

// Command is the server->peer dispatch frame sent by SendCommand.
type Command struct {
	Type     MessageType `json:"type"`
	TargetID string      `json:"target_id"`
	Data     CommandData `json:"data"`
}

// NewCommand builds a Command frame ready for marshaling.
func NewCommand(targetID, deviceType, label, state string) Command {
	return Command{
		Type:     TypeCommand,
		TargetID: targetID,
		Data: CommandData{
			DeviceType: deviceType,
			Label:      label,
			State:      state,
		},
	}
}

// RelayStates are the only state values validated for device_type "relay".
// Other device types are stored but not validated (data model stays open
// for future kinds per design note 9).
var RelayStates = map[string]bool{"on": true, "off": true}
