package models

// Channel identifiers, named after the OBD-II commands they emulate.
const (
	ChannelRPM         = "RPM"
	ChannelSpeed       = "SPEED"
	ChannelCoolantTemp = "COOLANT_TEMP"
	ChannelEngineLoad  = "ENGINE_LOAD"
	ChannelThrottlePos = "THROTTLE_POS"
	ChannelIntakeTemp  = "INTAKE_TEMP"
	ChannelMAF         = "MAF"
	ChannelFuelRate    = "FUEL_RATE"
	ChannelOilTemp     = "OIL_TEMP"
	ChannelOilPressure = "OIL_PRESSURE"
)

// channelUnits maps each known channel identifier to its display unit.
var channelUnits = map[string]string{
	ChannelRPM:         "rpm",
	ChannelSpeed:       "km/h",
	ChannelCoolantTemp: "°C",
	ChannelEngineLoad:  "%",
	ChannelThrottlePos: "%",
	ChannelIntakeTemp:  "°C",
	ChannelMAF:         "g/s",
	ChannelFuelRate:    "L/h",
	ChannelOilTemp:     "°C",
	ChannelOilPressure: "psi",
}

// UnitFor returns the display unit for a channel identifier.
// Unknown identifiers map to an empty unit.
func UnitFor(command string) string {
	return channelUnits[command]
}

// IsKnownChannel reports whether the identifier is one of the emulated channels.
func IsKnownChannel(command string) bool {
	_, ok := channelUnits[command]
	return ok
}

// ChannelNames returns the identifiers of all emulated channels.
// Order is unspecified.
func ChannelNames() []string {
	names := make([]string, 0, len(channelUnits))
	for name := range channelUnits {
		names = append(names, name)
	}
	return names
}
