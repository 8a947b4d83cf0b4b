package melcloud

import (
	"encoding/json"
)

// ATW zone operation modes (vendor numeric codes).
const (
	ATWModeHeatRoom  = 0
	ATWModeHeatFlow  = 1
	ATWModeHeatCurve = 2
	ATWModeCoolRoom  = 3
	ATWModeCoolFlow  = 4
)

// atwClient handles the wire mapping for air-to-water devices.
type atwClient struct{}

func (atwClient) family() Family { return FamilyATW }

func (atwClient) writePath() string { return "/Device/SetAtw" }

// schema lists every settable ATW field. The tank and zone 2 fields are
// part of the wire schema even on devices without those features; the
// null sentinel keeps them untouched.
func (atwClient) schema() []string {
	return []string{
		FieldPower,
		FieldOperationModeZone1,
		FieldSetTemperatureZone1,
		FieldSetTemperatureZone2,
		FieldSetTankTemperature,
		FieldForcedHotWater,
	}
}

// atwWireFields maps normalised field names to the vendor's names on
// the SetAtw endpoint.
var atwWireFields = map[string]string{
	FieldPower:               "Power",
	FieldOperationModeZone1:  "OperationModeZone1",
	FieldSetTemperatureZone1: "SetTemperatureZone1",
	FieldSetTemperatureZone2: "SetTemperatureZone2",
	FieldSetTankTemperature:  "SetTankWaterTemperature",
	FieldForcedHotWater:      "ForcedHotWaterMode",
}

func (atwClient) wireField(field string) (string, bool) {
	w, ok := atwWireFields[field]
	return w, ok
}

// parseState extracts the normalised state and capability flags from
// the raw device blob of the ListDevices response.
func (atwClient) parseState(raw map[string]json.RawMessage) (map[string]any, map[string]bool) {
	state := map[string]any{
		FieldPower:               rawBool(raw, "Power"),
		FieldOperationModeZone1:  rawInt(raw, "OperationModeZone1"),
		FieldSetTemperatureZone1: rawFloat(raw, "SetTemperatureZone1"),
		FieldRoomTemperatureZ1:   rawFloat(raw, "RoomTemperatureZone1"),
		FieldForcedHotWater:      rawBool(raw, "ForcedHotWaterMode"),
		FieldOutdoorTemperature:  rawFloat(raw, "OutdoorTemperature"),
		FieldHasError:            rawBool(raw, "HasError"),
		FieldOffline:             rawBool(raw, "Offline"),
	}

	caps := map[string]bool{
		CapEnergyMeter:  rawBool(raw, "HasEnergyConsumedMeter"),
		CapZone2:        rawBool(raw, "HasZone2"),
		CapHotWaterTank: rawBool(raw, "HasHotWaterTank"),
	}

	// Optional features only contribute state when present, so the host
	// never sees a phantom zone 2 or tank on hardware that lacks them.
	if caps[CapZone2] {
		state[FieldSetTemperatureZone2] = rawFloat(raw, "SetTemperatureZone2")
		state[FieldRoomTemperatureZ2] = rawFloat(raw, "RoomTemperatureZone2")
	}
	if caps[CapHotWaterTank] {
		state[FieldSetTankTemperature] = rawFloat(raw, "SetTankWaterTemperature")
		state[FieldTankTemperature] = rawFloat(raw, "TankWaterTemperature")
	}

	return state, caps
}
