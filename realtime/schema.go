package realtime

import (
	"sync"

	"github.com/clone-prom-team-2025/server-sub001/notifications"
	"github.com/clone-prom-team-2025/server-sub001/sessions"
	"github.com/invopop/jsonschema"
)

// Direction says who sends a message.
type Direction string

const (
	Inbound  Direction = "client_to_server"
	Outbound Direction = "server_to_client"
)

// MessageSchema documents one method or signal of the socket protocol.
type MessageSchema struct {
	Name      string             `json:"name"`
	Direction Direction          `json:"direction"`
	Params    *jsonschema.Schema `json:"params,omitempty"`
	Result    *jsonschema.Schema `json:"result,omitempty"`
}

// ProtocolSchema is the machine-readable description of every frame the hub
// accepts or emits.
type ProtocolSchema struct {
	Version  string          `json:"version"`
	Messages []MessageSchema `json:"messages"`
}

// ProtocolVersion identifies the method and signal set served by Hub.
const ProtocolVersion = "2025-06-01"

var (
	schemaOnce sync.Once
	schemaDoc  ProtocolSchema
)

// Schema returns the protocol description. It is built once.
func Schema() ProtocolSchema {
	schemaOnce.Do(func() {
		schemaDoc = ProtocolSchema{
			Version: ProtocolVersion,
			Messages: []MessageSchema{
				{Name: MethodRequestSessionData, Direction: Inbound, Result: reflectSchema[sessions.Projection]()},
				{Name: MethodReRegisterSession, Direction: Inbound, Result: reflectSchema[AckResult]()},
				{Name: MethodForceLogoutLocal, Direction: Inbound, Params: reflectSchema[ForceLogoutLocalParams](), Result: reflectSchema[AckResult]()},
				{Name: SignalRegistered, Direction: Outbound, Params: reflectSchema[RegisteredParams]()},
				{Name: SignalError, Direction: Outbound, Params: reflectSchema[ErrorParams]()},
				{Name: SignalReceiveNotification, Direction: Outbound, Params: reflectSchema[notifications.Notification]()},
				{Name: SignalForceLogout, Direction: Outbound, Params: reflectSchema[notifications.ForceLogoutParams]()},
			},
		}
	})
	return schemaDoc
}

func reflectSchema[T any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(T))
	// The per-message document is embedded; a $schema on each is noise.
	s.Version = ""
	return s
}
