package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_CONTROL      = "control_engine"
	ACTOR_ID_SCHEDULER    = "scheduler"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// GetSnapshotRequest asks the Modbus actor to run one Measurement
// Collector pass and return the assembled Snapshot.
type GetSnapshotRequest struct {
	ActorRequestMixIn
}

type GetSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot     Snapshot
	FieldErrors  []FieldError
}

// WriteCommandRequest asks the Modbus actor to write the EffectiveCommand
// back to the charger (target current, enable flag, optional phase switch).
type WriteCommandRequest struct {
	ActorRequestMixIn
	Command EffectiveCommand
}

type WriteCommandResponse struct {
	ActorResponseMixIn
	Acknowledged bool
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
	Selects      []GenericSelect
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// IncomingCommand is sent by the MQTT/HTTP adapters into the Control
// Engine actor's Command Inbox.
type IncomingCommand struct {
	Command Command
}

// PVSurplusUpdate carries the host's PV-excess signal into the Control
// Engine actor. It is not a Command: it is never queued or deduplicated,
// only the latest value is kept and consumed on the next tick.
type PVSurplusUpdate struct {
	WattsSigned float64
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
