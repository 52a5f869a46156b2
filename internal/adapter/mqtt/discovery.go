package mqtt

import (
	"fmt"

	"github.com/evdriver/evdriver/internal/core/domain"
)

// HADiscoveryConfig is the Home-Assistant-style MQTT discovery payload,
// grounded on the teacher's internal/mqtt/ha_discovery.go HADiscoveryConfig,
// extended with Options for the "select" platform the teacher never needed
// (the battery driver had no multi-choice writable property; this driver's
// charging-mode control is exactly that).
type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
	Min               float64           `json:"min,omitempty"`
	Max               float64           `json:"max,omitempty"`
	Step              float64           `json:"step,omitempty"`
	Mode              string            `json:"mode,omitempty"`
	InitialValue      any               `json:"initial,omitempty"`
	Options           []string          `json:"options,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return fmt.Sprintf("homeassistant/%s/%s/%s/config", sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func HADiscoverySwitchTopic(sw domain.GenericSwitch) string {
	return fmt.Sprintf("homeassistant/switch/%s/%s/config", sw.Device.Id, sw.Id)
}

func HADiscoveryInputNumberTopic(n domain.GenericInputNumber) string {
	return fmt.Sprintf("homeassistant/number/%s/%s/config", n.Device.Id, n.Id)
}

func HADiscoverySelectTopic(s domain.GenericSelect) string {
	return fmt.Sprintf("homeassistant/select/%s/%s/config", s.Device.Id, s.Id)
}

func GenericSensorToHADiscoveryMessage(client *Client, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == domain.SensorIDBridgeState:
		topic = client.BridgeStateTopic()
	case sensor.SensorType == domain.SensorTypeBinary:
		topic = client.BinarySensorStateTopic(sensor.Id)
	default:
		topic = client.SensorStateTopic(sensor.Id)
	}
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		AvTopic:           client.BridgeStateTopic(),
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.Id == domain.SensorIDBridgeState {
		disConfig.PayloadOn = PayloadOnline
		disConfig.PayloadOff = PayloadOffline
	} else if sensor.SensorType == domain.SensorTypeBinary {
		disConfig.PayloadOn = PayloadOn
		disConfig.PayloadOff = PayloadOff
	}
	return disConfig
}

func GenericSwitchToHADiscoveryMessage(client *Client, sw domain.GenericSwitch) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:       device(sw.Device),
		StateTopic:   client.SwitchStateTopic(sw.Id),
		CommandTopic: client.SwitchCommandTopic(sw.Id),
		AvTopic:      client.BridgeStateTopic(),
		Name:         sw.Name,
		UniqueId:     sw.UniqueId,
		Icon:         sw.Icon,
		Platform:     "mqtt",
		PayloadOn:    PayloadOn,
		PayloadOff:   PayloadOff,
	}
}

func GenericInputNumberToHADiscoveryMessage(client *Client, n domain.GenericInputNumber) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:       device(n.Device),
		StateTopic:   client.NumberStateTopic(n.Id),
		CommandTopic: client.NumberCommandTopic(n.Id),
		AvTopic:      client.BridgeStateTopic(),
		Name:         n.Name,
		UniqueId:     n.UniqueId,
		Icon:         n.Icon,
		Platform:     "mqtt",
		Min:          n.Min,
		Max:          n.Max,
		Step:         n.Step,
		Mode:         n.Mode,
		InitialValue: n.InitialValue,
	}
}

func GenericSelectToHADiscoveryMessage(client *Client, s domain.GenericSelect) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:       device(s.Device),
		StateTopic:   client.SelectStateTopic(s.Id),
		CommandTopic: client.SelectCommandTopic(s.Id),
		AvTopic:      client.BridgeStateTopic(),
		Name:         s.Name,
		UniqueId:     s.UniqueId,
		Icon:         s.Icon,
		Platform:     "mqtt",
		Options:      s.Options,
		InitialValue: s.InitialValue,
	}
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
