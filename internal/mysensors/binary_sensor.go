package mysensors

import (
	"github.com/rs/zerolog/log"

	"sensorbridge/internal/entity"
	"sensorbridge/internal/platform"
)

// Sensors maps presentation names to binary sensor device classes.
var Sensors = map[string]string{
	"S_DOOR":       "door",
	"S_MOTION":     "motion",
	"S_SMOKE":      "smoke",
	"S_SPRINKLER":  "safety",
	"S_WATER_LEAK": "safety",
	"S_SOUND":      "sound",
	"S_VIBRATION":  "vibration",
	"S_MOISTURE":   "moisture",
}

// DeviceClasses are the binary sensor device classes the host understands.
var DeviceClasses = []string{
	"battery", "battery_charging", "carbon_monoxide", "cold", "connectivity",
	"door", "garage_door", "gas", "heat", "light", "lock", "moisture", "motion",
	"moving", "occupancy", "opening", "plug", "power", "presence", "problem",
	"running", "safety", "smoke", "sound", "tamper", "update", "vibration", "window",
}

func validDeviceClass(class string) bool {
	for _, c := range DeviceClasses {
		if c == class {
			return true
		}
	}
	return false
}

// BinarySensor is a MySensors child exposed as an on/off sensor.
type BinarySensor struct {
	*ChildEntity
}

func NewBinarySensor(gw *Gateway, id DevID) ChildDevice {
	return &BinarySensor{ChildEntity: NewChildEntity(gw, id)}
}

func (b *BinarySensor) Domain() string { return binarySensorDomain }

// IsOn reports whether the cached value equals the on state.
func (b *BinarySensor) IsOn() bool {
	v, _ := b.Value(b.ValueType())
	return v == entity.StateOn
}

func (b *BinarySensor) State() any { return b.IsOn() }

// DeviceClass looks the child type up in Sensors and returns "" unless
// the mapped class is a known binary sensor class.
func (b *BinarySensor) DeviceClass() string {
	return DeviceClassFor(b.ChildType())
}

func DeviceClassFor(p Presentation) string {
	class, ok := Sensors[p.String()]
	if !ok || !validDeviceClass(class) {
		return ""
	}
	return class
}

// SetupBinarySensorEntry wires binary sensor discovery for one gateway.
func SetupBinarySensorEntry(gw *Gateway, add platform.AddEntities) {
	signal := DiscoverySignal(gw.EntryID(), binarySensorDomain)
	unsub := gw.Dispatcher().Connect(signal, func(payload any) {
		info, ok := payload.(DiscoveryInfo)
		if !ok {
			log.Warn().Str("signal", signal).Msg("unexpected discovery payload")
			return
		}
		SetupPlatform(gw, binarySensorDomain, info, NewBinarySensor, add)
	})
	gw.OnUnload(unsub)
	log.Debug().Str("signal", signal).Int("handlers", gw.Dispatcher().Handlers(signal)).Msg("listening for binary sensor discovery")
}
