package melcloud

import (
	"encoding/json"
)

// ATA operation modes (vendor numeric codes).
const (
	ATAModeHeat    = 1
	ATAModeDry     = 2
	ATAModeCool    = 3
	ATAModeFanOnly = 7
	ATAModeAuto    = 8
)

// ataClient handles the wire mapping for air-to-air devices.
type ataClient struct{}

func (ataClient) family() Family { return FamilyATA }

func (ataClient) writePath() string { return "/Device/SetAta" }

// schema lists every settable ATA field. SendUpdate transmits all of
// them on every write; see the package doc for the null sentinel rule.
func (ataClient) schema() []string {
	return []string{
		FieldPower,
		FieldOperationMode,
		FieldSetTemperature,
		FieldFanSpeed,
		FieldVaneHorizontal,
		FieldVaneVertical,
	}
}

// ataWireFields maps normalised field names to the vendor's names on
// the SetAta endpoint.
var ataWireFields = map[string]string{
	FieldPower:          "Power",
	FieldOperationMode:  "OperationMode",
	FieldSetTemperature: "SetTemperature",
	FieldFanSpeed:       "SetFanSpeed",
	FieldVaneHorizontal: "VaneHorizontal",
	FieldVaneVertical:   "VaneVertical",
}

func (ataClient) wireField(field string) (string, bool) {
	w, ok := ataWireFields[field]
	return w, ok
}

// parseState extracts the normalised state and capability flags from
// the raw device blob of the ListDevices response.
func (ataClient) parseState(raw map[string]json.RawMessage) (map[string]any, map[string]bool) {
	state := map[string]any{
		FieldPower:           rawBool(raw, "Power"),
		FieldOperationMode:   rawInt(raw, "OperationMode"),
		FieldSetTemperature:  rawFloat(raw, "SetTemperature"),
		FieldFanSpeed:        rawInt(raw, "SetFanSpeed"),
		FieldVaneHorizontal:  rawInt(raw, "VaneHorizontal"),
		FieldVaneVertical:    rawInt(raw, "VaneVertical"),
		FieldRoomTemperature: rawFloat(raw, "RoomTemperature"),
		FieldHasError:        rawBool(raw, "HasError"),
		FieldOffline:         rawBool(raw, "Offline"),
	}

	caps := map[string]bool{
		CapEnergyMeter: rawBool(raw, "HasEnergyConsumedMeter"),
	}

	return state, caps
}

// rawBool decodes a boolean field, false if absent or malformed.
func rawBool(raw map[string]json.RawMessage, key string) bool {
	var v bool
	if msg, ok := raw[key]; ok {
		_ = json.Unmarshal(msg, &v) //nolint:errcheck // Absent fields default to zero
	}
	return v
}

// rawInt decodes an integer field, 0 if absent or malformed.
func rawInt(raw map[string]json.RawMessage, key string) int {
	var v int
	if msg, ok := raw[key]; ok {
		_ = json.Unmarshal(msg, &v) //nolint:errcheck // Absent fields default to zero
	}
	return v
}

// rawFloat decodes a float field, 0 if absent or malformed.
func rawFloat(raw map[string]json.RawMessage, key string) float64 {
	var v float64
	if msg, ok := raw[key]; ok {
		_ = json.Unmarshal(msg, &v) //nolint:errcheck // Absent fields default to zero
	}
	return v
}
