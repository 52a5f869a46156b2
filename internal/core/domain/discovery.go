package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Sensor/switch/input-number ids, one per Property Store path that gets
// mirrored onto the publish bus and HA-style discovery.
const (
	SensorIDBridgeState  = "bridge"
	SensorIDStatus       = "status"
	SensorIDCurrent      = "current"
	SensorIDChargingTime = "charging_time"
	SensorIDProductName  = "product_name"
	SensorIDFirmware     = "firmware_version"
	SensorIDSerial       = "serial"
	SensorIDACPower      = "ac_power"
	SensorIDACEnergy     = "ac_energy_forward"
	SensorIDACPhaseCount = "ac_phase_count"

	SwitchIDStartStop = "start_stop"

	InputNumberIDSetCurrent = "set_current"

	SelectIDMode = "mode"

	StateClassMeasurement     = "measurement"
	StateClassTotalIncreasing = "total_increasing"
	StateClassDuration        = "duration"
	DeviceClassVoltage        = "voltage"
	DeviceClassCurrent        = "current"
	DeviceClassPower          = "power"
	DeviceClassEnergy         = "energy"
	DeviceClassConnectivity   = "connectivity"
	EntityClassDiagnostic     = "diagnostic"
	SensorTypeSensor          = "sensor"
	SensorTypeBinary          = "binary_sensor"
	InputNumberModeBox        = "box"
)

func acPhaseSensorID(phase int, kind string) string {
	return fmt.Sprintf("ac_l%d_%s", phase, kind)
}

// ACPhaseSensorID exports the per-phase sensor id builder so the MQTT
// publish-bus exporter can map a Property Store path like "/Ac/L1/Voltage"
// back onto the sensor discovery built by ChargerSensors below.
func ACPhaseSensorID(phase int, kind string) string {
	return acPhaseSensorID(phase, kind)
}

// BridgeDevice is the synthetic device the publish-bus exporter itself
// shows as online/offline, independent of the charger device below.
func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("evdriver_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "evdriver",
		Model:        "EV Charger Driver",
		Name:         fmt.Sprintf("EV Driver Bridge %s", md5HashShort(baseTopic)),
	}
}

// ChargerDevice describes the single charging station this process drives.
func ChargerDevice(productName, serial, firmware string) Device {
	return Device{
		Id:      fmt.Sprintf("evdriver_charger_%s", md5HashShort(serial)),
		Version: firmware,
		Model:   productName,
		Name:    fmt.Sprintf("%s %s", productName, md5HashShort(serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{Id: device.Id, Name: device.Name}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SensorIDBridgeState,
		SensorType:     SensorTypeBinary,
		Name:           "Connection state",
		DeviceClass:    DeviceClassConnectivity,
		EntityCategory: EntityClassDiagnostic,
		UniqueId:       uniqueId(bridgeDevice.Id, SensorIDBridgeState),
	}}
}

// ChargerSensors builds the read-only sensor set mirroring the Property
// Store's measurement paths (/Ac/*, /Status, /ChargingTime, identifiers).
func ChargerSensors(device Device) []GenericSensor {
	sensors := []GenericSensor{
		{
			Device: device, Id: SensorIDStatus, SensorType: SensorTypeSensor,
			Name: "Status", UniqueId: uniqueId(device.Id, SensorIDStatus),
		},
		{
			Device: device, Id: SensorIDCurrent, SensorType: SensorTypeSensor,
			Name: "Commanded current", StateClass: StateClassMeasurement,
			DeviceClass: DeviceClassCurrent, UnitOfMeasurement: "A",
			UniqueId: uniqueId(device.Id, SensorIDCurrent),
		},
		{
			Device: device, Id: SensorIDACPower, SensorType: SensorTypeSensor,
			Name: "AC power", StateClass: StateClassMeasurement,
			DeviceClass: DeviceClassPower, UnitOfMeasurement: "W",
			UniqueId: uniqueId(device.Id, SensorIDACPower),
		},
		{
			Device: device, Id: SensorIDACEnergy, SensorType: SensorTypeSensor,
			Name: "Lifetime energy", StateClass: StateClassTotalIncreasing,
			DeviceClass: DeviceClassEnergy, UnitOfMeasurement: "kWh",
			UniqueId: uniqueId(device.Id, SensorIDACEnergy),
		},
		{
			Device: device, Id: SensorIDACPhaseCount, SensorType: SensorTypeSensor,
			Name: "Active phases", UniqueId: uniqueId(device.Id, SensorIDACPhaseCount),
		},
		{
			Device: device, Id: SensorIDChargingTime, SensorType: SensorTypeSensor,
			Name: "Session charging time", StateClass: StateClassDuration,
			UnitOfMeasurement: "s", UniqueId: uniqueId(device.Id, SensorIDChargingTime),
		},
		{
			Device: device, Id: SensorIDProductName, SensorType: SensorTypeSensor,
			Name: "Product name", EntityCategory: EntityClassDiagnostic,
			UniqueId: uniqueId(device.Id, SensorIDProductName),
		},
		{
			Device: device, Id: SensorIDFirmware, SensorType: SensorTypeSensor,
			Name: "Firmware version", EntityCategory: EntityClassDiagnostic,
			UniqueId: uniqueId(device.Id, SensorIDFirmware),
		},
		{
			Device: device, Id: SensorIDSerial, SensorType: SensorTypeSensor,
			Name: "Serial", EntityCategory: EntityClassDiagnostic,
			UniqueId: uniqueId(device.Id, SensorIDSerial),
		},
	}
	for phase := 1; phase <= 3; phase++ {
		for _, kind := range []struct {
			suffix, name, class, unit string
		}{
			{"voltage", "voltage", DeviceClassVoltage, "V"},
			{"current", "current", DeviceClassCurrent, "A"},
			{"power", "power", DeviceClassPower, "W"},
		} {
			id := acPhaseSensorID(phase, kind.suffix)
			sensors = append(sensors, GenericSensor{
				Device: device, Id: id, SensorType: SensorTypeSensor,
				Name:              fmt.Sprintf("L%d %s", phase, kind.name),
				StateClass:        StateClassMeasurement,
				DeviceClass:       kind.class,
				UnitOfMeasurement: kind.unit,
				UniqueId:          uniqueId(device.Id, id),
			})
		}
	}
	return sensors
}

func ChargerSwitches(device Device) []GenericSwitch {
	return []GenericSwitch{{
		Device:   device,
		Id:       SwitchIDStartStop,
		Name:     "Start / stop charging",
		UniqueId: uniqueId(device.Id, SwitchIDStartStop),
		Icon:     "mdi:ev-plug-type2",
	}}
}

func ChargerInputNumbers(device Device) []GenericInputNumber {
	return []GenericInputNumber{{
		Device:       device,
		Id:           InputNumberIDSetCurrent,
		Name:         "Set current",
		UniqueId:     uniqueId(device.Id, InputNumberIDSetCurrent),
		Icon:         "mdi:current-ac",
		Max:          MaxSetCurrentA,
		Min:          MinSetCurrentA,
		Step:         0.1,
		Mode:         InputNumberModeBox,
		InitialValue: MinSetCurrentA,
	}}
}

func ChargerSelects(device Device) []GenericSelect {
	return []GenericSelect{{
		Device:       device,
		Id:           SelectIDMode,
		Name:         "Charging mode",
		UniqueId:     uniqueId(device.Id, SelectIDMode),
		Icon:         "mdi:ev-station",
		Options:      []string{ModeManual.String(), ModeAuto.String(), ModeScheduled.String()},
		InitialValue: ModeManual.String(),
	}}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
