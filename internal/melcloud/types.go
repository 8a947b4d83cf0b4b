package melcloud

import (
	"encoding/json"
	"time"
)

// Family identifies a heat pump device family.
type Family string

// Device families supported by the client.
const (
	// FamilyATA is air-to-air (room air conditioning / heat pump).
	FamilyATA Family = "ata"

	// FamilyATW is air-to-water (hydronic heating with optional DHW tank).
	FamilyATW Family = "atw"
)

// Normalised state field names shared between the client, the control
// dispatcher and the host-facing API. State maps are keyed by these.
const (
	// Settable on both families.
	FieldPower = "power"

	// Settable, ATA.
	FieldOperationMode  = "operationMode"
	FieldSetTemperature = "setTemperature"
	FieldFanSpeed       = "fanSpeed"
	FieldVaneHorizontal = "vaneHorizontal"
	FieldVaneVertical   = "vaneVertical"

	// Settable, ATW.
	FieldOperationModeZone1  = "operationModeZone1"
	FieldSetTemperatureZone1 = "setTemperatureZone1"
	FieldSetTemperatureZone2 = "setTemperatureZone2"
	FieldSetTankTemperature  = "setTankWaterTemperature"
	FieldForcedHotWater      = "forcedHotWater"

	// Read-only telemetry fields.
	FieldRoomTemperature    = "roomTemperature"
	FieldRoomTemperatureZ1  = "roomTemperatureZone1"
	FieldRoomTemperatureZ2  = "roomTemperatureZone2"
	FieldTankTemperature    = "tankWaterTemperature"
	FieldOutdoorTemperature = "outdoorTemperature"
	FieldHasError           = "hasError"
	FieldOffline            = "offline"
)

// Capability flag names exposed on Device.Capabilities.
const (
	// CapEnergyMeter is set when the device carries a consumption meter
	// and supports the energy report endpoint.
	CapEnergyMeter = "energyMeter"

	// CapZone2 is set on ATW devices with a second heating zone.
	CapZone2 = "zone2"

	// CapHotWaterTank is set on ATW devices with a DHW tank.
	CapHotWaterTank = "hotWaterTank"
)

// Device is one heat pump as seen in the combined account snapshot.
//
// State is replaced wholesale on every sync cycle; it is never mutated
// field-by-field. The control dispatcher reads it for command
// deduplication, which is only sound because of the wholesale swap.
type Device struct {
	// ID is the MELCloud device GUID.
	ID string `json:"id"`

	// BuildingID is the GUID of the building the device belongs to.
	BuildingID string `json:"building_id"`

	// Name is the user-assigned device name.
	Name string `json:"name"`

	// Family is the device family (ata or atw).
	Family Family `json:"family"`

	// State holds the last known values keyed by the normalised Field*
	// constants.
	State map[string]any `json:"state"`

	// Capabilities holds structural capability flags keyed by the Cap*
	// constants.
	Capabilities map[string]bool `json:"capabilities"`

	// LastCommunication is the device's last contact with the cloud.
	LastCommunication time.Time `json:"last_communication"`
}

// HasCapability reports whether a capability flag is present and true.
func (d *Device) HasCapability(name string) bool {
	return d.Capabilities[name]
}

// UserContext is the combined snapshot of every device on the account,
// both families, as returned by a single fetch.
type UserContext struct {
	Devices   []Device  `json:"devices"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Sample is one point of a telemetry series.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Measure identifies a telemetry series on the report endpoint.
type Measure string

// Telemetry measures used by the sync loop and the energy accumulator.
const (
	MeasureOutdoorTemperature Measure = "OutdoorTemperature"
	MeasureEnergyConsumed     Measure = "EnergyConsumed"
)

// wire types for the ListDevices response. MELCloud nests devices under
// buildings, floors and areas; the client flattens the hierarchy.

type wireBuilding struct {
	ID        string        `json:"ID"`
	Structure wireStructure `json:"Structure"`
}

type wireStructure struct {
	Devices []wireDevice `json:"Devices"`
	Areas   []wireArea   `json:"Areas"`
	Floors  []wireFloor  `json:"Floors"`
}

type wireArea struct {
	Devices []wireDevice `json:"Devices"`
}

type wireFloor struct {
	Devices []wireDevice `json:"Devices"`
	Areas   []wireArea   `json:"Areas"`
}

type wireDevice struct {
	DeviceID   string `json:"DeviceID"`
	DeviceName string `json:"DeviceName"`
	BuildingID string `json:"BuildingID"`
	// Type is 0 for ATA, 1 for ATW.
	Type int `json:"Type"`
	// Device carries the family-specific state blob.
	Device map[string]json.RawMessage `json:"Device"`
}

// wireDeviceTypes maps the vendor's numeric device type to a family.
var wireDeviceTypes = map[int]Family{
	0: FamilyATA,
	1: FamilyATW,
}

// allDevices flattens the building structure into a single device list.
func (b *wireBuilding) allDevices() []wireDevice {
	var out []wireDevice
	out = append(out, b.Structure.Devices...)
	for _, a := range b.Structure.Areas {
		out = append(out, a.Devices...)
	}
	for _, f := range b.Structure.Floors {
		out = append(out, f.Devices...)
		for _, a := range f.Areas {
			out = append(out, a.Devices...)
		}
	}
	return out
}
