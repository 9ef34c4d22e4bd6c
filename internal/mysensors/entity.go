package mysensors

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"sensorbridge/internal/entity"
)

const (
	attrBatteryLevel = "battery_level"
	attrHeartbeat    = "heartbeat"
	attrChildID      = "child_id"
	attrNodeID       = "node_id"
	attrDescription  = "description"
)

// ChildDevice is an entity backed by a gateway child.
type ChildDevice interface {
	entity.Entity
	DevID() DevID
	// Refresh copies the latest child and node data from the gateway.
	Refresh()
}

// ChildEntity holds what every MySensors entity shares: its position in
// the node tree and the values last copied from the gateway.
type ChildEntity struct {
	gateway   *Gateway
	id        DevID
	childType Presentation

	mu     sync.RWMutex
	name   string
	values map[ValueType]string
	attrs  map[string]any
}

func NewChildEntity(gw *Gateway, id DevID) *ChildEntity {
	c := &ChildEntity{
		gateway: gw,
		id:      id,
		values:  make(map[ValueType]string),
		attrs:   make(map[string]any),
	}
	if child, ok := gw.Child(id.NodeID, id.ChildID); ok {
		c.childType = child.Type
	}
	c.name = c.nodeName()
	return c
}

func (c *ChildEntity) nodeName() string {
	n, ok := c.gateway.NodeSnapshot(c.id.NodeID)
	if !ok || n.SketchName == "" {
		return fmt.Sprintf("Node %d %d", c.id.NodeID, c.id.ChildID)
	}
	return fmt.Sprintf("%s %d", n.SketchName, c.id.ChildID)
}

func (c *ChildEntity) DevID() DevID            { return c.id }
func (c *ChildEntity) ChildType() Presentation { return c.childType }
func (c *ChildEntity) ValueType() ValueType    { return c.id.ValueType }
func (c *ChildEntity) UniqueID() string        { return c.id.String() }
func (c *ChildEntity) Icon() string            { return "" }

func (c *ChildEntity) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Available is true once the entity's value type has been reported.
func (c *ChildEntity) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[c.id.ValueType]
	return ok
}

// Value returns the cached, normalised value for vt.
func (c *ChildEntity) Value(vt ValueType) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[vt]
	return v, ok
}

func (c *ChildEntity) Attributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = v
	}
	return out
}

// Refresh copies the child's values, normalising binary value types
// to on/off.
func (c *ChildEntity) Refresh() {
	node, ok := c.gateway.NodeSnapshot(c.id.NodeID)
	if !ok {
		return
	}
	child, ok := node.Children[c.id.ChildID]
	if !ok {
		return
	}

	values := make(map[ValueType]string, len(child.Values))
	attrs := map[string]any{
		attrChildID:     c.id.ChildID,
		attrNodeID:      c.id.NodeID,
		attrDescription: child.Description,
		attrHeartbeat:   node.Heartbeat,
	}
	if node.BatteryLevel >= 0 {
		attrs[attrBatteryLevel] = node.BatteryLevel
	}
	for vt, raw := range child.Values {
		v := raw
		if binaryValueTypes[vt] {
			v = binaryState(raw)
		}
		values[vt] = v
		attrs[vt.String()] = v
	}

	c.mu.Lock()
	c.values = values
	c.attrs = attrs
	if node.SketchName != "" {
		c.name = fmt.Sprintf("%s %d", node.SketchName, c.id.ChildID)
	}
	c.mu.Unlock()
}

func binaryState(raw string) string {
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Debug().Str("value", raw).Msg("non-numeric binary value treated as off")
		return entity.StateOff
	}
	if n == 1 {
		return entity.StateOn
	}
	return entity.StateOff
}
