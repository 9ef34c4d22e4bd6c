package mysensors

import (
	"fmt"
	"strconv"
)

const Domain = "mysensors"

// Command is the message command field of the serial protocol.
type Command int

const (
	CommandPresentation Command = iota
	CommandSet
	CommandReq
	CommandInternal
	CommandStream
)

var commandNames = [...]string{"presentation", "set", "req", "internal", "stream"}

func (c Command) String() string {
	if c >= 0 && int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "command(" + strconv.Itoa(int(c)) + ")"
}

// Presentation is the sensing capability a child presents itself as.
type Presentation int

const (
	SDoor Presentation = iota
	SMotion
	SSmoke
	SBinary
	SDimmer
	SCover
	STemp
	SHum
	SBaro
	SWind
	SRain
	SUV
	SWeight
	SPower
	SHeater
	SDistance
	SLightLevel
	SArduinoNode
	SArduinoRepeaterNode
	SLock
	SIR
	SWater
	SAirQuality
	SCustom
	SDust
	SSceneController
	SRGBLight
	SRGBWLight
	SColorSensor
	SHVAC
	SMultimeter
	SSprinkler
	SWaterLeak
	SSound
	SVibration
	SMoisture
	SInfo
	SGas
	SGPS
	SWaterQuality
)

var presentationNames = [...]string{
	"S_DOOR", "S_MOTION", "S_SMOKE", "S_BINARY", "S_DIMMER", "S_COVER", "S_TEMP", "S_HUM",
	"S_BARO", "S_WIND", "S_RAIN", "S_UV", "S_WEIGHT", "S_POWER", "S_HEATER", "S_DISTANCE",
	"S_LIGHT_LEVEL", "S_ARDUINO_NODE", "S_ARDUINO_REPEATER_NODE", "S_LOCK", "S_IR", "S_WATER",
	"S_AIR_QUALITY", "S_CUSTOM", "S_DUST", "S_SCENE_CONTROLLER", "S_RGB_LIGHT", "S_RGBW_LIGHT",
	"S_COLOR_SENSOR", "S_HVAC", "S_MULTIMETER", "S_SPRINKLER", "S_WATER_LEAK", "S_SOUND",
	"S_VIBRATION", "S_MOISTURE", "S_INFO", "S_GAS", "S_GPS", "S_WATER_QUALITY",
}

// Valid reports whether p is a known presentation type.
func (p Presentation) Valid() bool { return p >= 0 && int(p) < len(presentationNames) }

func (p Presentation) String() string {
	if p.Valid() {
		return presentationNames[p]
	}
	return "S_UNKNOWN(" + strconv.Itoa(int(p)) + ")"
}

// PresentationByName resolves a protocol name such as "S_DOOR".
func PresentationByName(name string) (Presentation, bool) {
	for i, n := range presentationNames {
		if n == name {
			return Presentation(i), true
		}
	}
	return 0, false
}

// ValueType is the type field of set and req messages.
type ValueType int

const (
	VTemp ValueType = iota
	VHum
	VStatus
	VPercentage
	VPressure
	VForecast
	VRain
	VRainRate
	VWind
	VGust
	VDirection
	VUV
	VWeight
	VDistance
	VImpedance
	VArmed
	VTripped
	VWatt
	VKWh
	VSceneOn
	VSceneOff
	VHVACFlowState
	VHVACSpeed
	VLightLevel
	VVar1
	VVar2
	VVar3
	VVar4
	VVar5
	VUp
	VDown
	VStop
	VIRSend
	VIRReceive
	VFlow
	VVolume
	VLockStatus
	VLevel
	VVoltage
	VCurrent
	VRGB
	VRGBW
	VID
	VUnitPrefix
	VHVACSetpointCool
	VHVACSetpointHeat
	VHVACFlowMode
	VText
	VCustom
	VPosition
	VIRRecord
	VPH
	VORP
	VEC
	VVar
	VVA
	VPowerFactor
)

// VLight and VDimmer are the protocol 1.x names for VStatus and VPercentage.
const (
	VLight  = VStatus
	VDimmer = VPercentage
)

var valueTypeNames = [...]string{
	"V_TEMP", "V_HUM", "V_STATUS", "V_PERCENTAGE", "V_PRESSURE", "V_FORECAST", "V_RAIN",
	"V_RAINRATE", "V_WIND", "V_GUST", "V_DIRECTION", "V_UV", "V_WEIGHT", "V_DISTANCE",
	"V_IMPEDANCE", "V_ARMED", "V_TRIPPED", "V_WATT", "V_KWH", "V_SCENE_ON", "V_SCENE_OFF",
	"V_HVAC_FLOW_STATE", "V_HVAC_SPEED", "V_LIGHT_LEVEL", "V_VAR1", "V_VAR2", "V_VAR3",
	"V_VAR4", "V_VAR5", "V_UP", "V_DOWN", "V_STOP", "V_IR_SEND", "V_IR_RECEIVE", "V_FLOW",
	"V_VOLUME", "V_LOCK_STATUS", "V_LEVEL", "V_VOLTAGE", "V_CURRENT", "V_RGB", "V_RGBW",
	"V_ID", "V_UNIT_PREFIX", "V_HVAC_SETPOINT_COOL", "V_HVAC_SETPOINT_HEAT", "V_HVAC_FLOW_MODE",
	"V_TEXT", "V_CUSTOM", "V_POSITION", "V_IR_RECORD", "V_PH", "V_ORP", "V_EC", "V_VAR",
	"V_VA", "V_POWER_FACTOR",
}

func (v ValueType) Valid() bool { return v >= 0 && int(v) < len(valueTypeNames) }

func (v ValueType) String() string {
	if v.Valid() {
		return valueTypeNames[v]
	}
	return "V_UNKNOWN(" + strconv.Itoa(int(v)) + ")"
}

// binaryValueTypes hold 0/1 payloads that map onto on/off.
var binaryValueTypes = map[ValueType]bool{
	VArmed:      true,
	VStatus:     true,
	VLockStatus: true,
	VTripped:    true,
	VUp:         true,
	VDown:       true,
	VStop:       true,
}

// Internal message subtypes the gateway acts on.
const (
	IBatteryLevel      = 0
	ISketchName        = 11
	ISketchVersion     = 12
	IGatewayReady      = 14
	IHeartbeatResponse = 22
)

// NodeChildID is the child id a node uses to present itself.
const NodeChildID = 255

const binarySensorDomain = "binary_sensor"

// PlatformTypes lists, per entity platform, which presentation types are
// exposed and which value types make a child of that type a device.
var PlatformTypes = map[string]map[Presentation][]ValueType{
	binarySensorDomain: {
		SDoor:      {VTripped},
		SMotion:    {VTripped},
		SSmoke:     {VTripped},
		SSprinkler: {VTripped},
		SWaterLeak: {VTripped},
		SSound:     {VTripped},
		SVibration: {VTripped},
		SMoisture:  {VTripped},
	},
}

// DevID identifies one entity-worthy value of a child.
type DevID struct {
	GatewayID string
	NodeID    int
	ChildID   int
	ValueType ValueType
}

func (d DevID) String() string {
	return fmt.Sprintf("%s-%d-%d-%d", d.GatewayID, d.NodeID, d.ChildID, int(d.ValueType))
}

// DiscoveryInfo is the payload of a discovery signal.
type DiscoveryInfo struct {
	Devices []DevID
}

// DiscoverySignal is sent when new devices of domain appear on a gateway.
func DiscoverySignal(entryID, domain string) string {
	return fmt.Sprintf("mysensors_discovery_%s_%s", entryID, domain)
}

// ChildSignal is sent after a child value changes.
func ChildSignal(entryID string, nodeID, childID int, vt ValueType) string {
	return fmt.Sprintf("mysensors_child_callback_%s_%d_%d_%d", entryID, nodeID, childID, int(vt))
}

// NodeSignal is sent after node level data such as battery changes.
func NodeSignal(entryID string, nodeID int) string {
	return fmt.Sprintf("mysensors_node_callback_%s_%d", entryID, nodeID)
}
