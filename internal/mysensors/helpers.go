package mysensors

import (
	"github.com/rs/zerolog/log"

	"sensorbridge/internal/entity"
	"sensorbridge/internal/platform"
)

// EntityFactory builds the platform entity for one discovered device.
type EntityFactory func(gw *Gateway, id DevID) ChildDevice

// SetupPlatform creates entities for the devices in info that domain has
// not seen yet, adds them, then keeps them refreshed from the gateway's
// child and node signals until the gateway unloads.
func SetupPlatform(gw *Gateway, domain string, info DiscoveryInfo, factory EntityFactory, add platform.AddEntities) {
	var created []ChildDevice

	gw.devMu.Lock()
	devices := gw.platformDevices(domain)
	var pending []DevID
	for _, id := range info.Devices {
		if _, exists := devices[id]; exists {
			continue
		}
		if id.GatewayID != gw.EntryID() {
			log.Warn().Str("gateway", gw.EntryID()).Str("device", id.String()).Msg("device belongs to another gateway")
			continue
		}
		pending = append(pending, id)
	}
	gw.devMu.Unlock()

	for _, id := range pending {
		dev := factory(gw, id)
		dev.Refresh()

		gw.devMu.Lock()
		if _, exists := devices[id]; exists {
			gw.devMu.Unlock()
			continue
		}
		devices[id] = dev
		gw.devMu.Unlock()
		created = append(created, dev)
	}
	if len(created) == 0 {
		return
	}

	entities := make([]entity.Entity, 0, len(created))
	for _, dev := range created {
		entities = append(entities, dev)
	}
	log.Info().Str("gateway", gw.EntryID()).Str("domain", domain).Int("devices", len(entities)).Msg("adding new devices")
	add(entities, false)

	for _, dev := range created {
		connectUpdates(gw, dev)
	}
}

func connectUpdates(gw *Gateway, dev ChildDevice) {
	id := dev.DevID()
	refresh := func(any) {
		dev.Refresh()
		gw.writeState(dev)
	}
	d := gw.Dispatcher()
	gw.OnUnload(d.Connect(ChildSignal(gw.EntryID(), id.NodeID, id.ChildID, id.ValueType), refresh))
	gw.OnUnload(d.Connect(NodeSignal(gw.EntryID(), id.NodeID), refresh))
}

// Devices returns the entities created for domain on this gateway.
func (g *Gateway) Devices(domain string) []entity.Entity {
	g.devMu.Lock()
	defer g.devMu.Unlock()
	out := make([]entity.Entity, 0, len(g.devices[domain]))
	for _, e := range g.devices[domain] {
		out = append(out, e)
	}
	return out
}
