package mysensors

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"sensorbridge/internal/dispatcher"
	"sensorbridge/internal/entity"
)

// Child is one sensor or actuator on a node.
type Child struct {
	ID          int
	Type        Presentation
	Description string
	Values      map[ValueType]string
}

// Node is one device on the sensor network.
type Node struct {
	ID            int
	SketchName    string
	SketchVersion string
	BatteryLevel  int
	Heartbeat     int
	Children      map[int]*Child
}

// GatewayMetrics is notified about gateway traffic. Nil disables it.
type GatewayMetrics interface {
	MessageHandled(entryID string, cmd Command)
	MessageRejected(entryID string)
	DevicesDiscovered(entryID, domain string, n int)
}

// Gateway tracks the node tree reported by one MySensors gateway and
// turns protocol traffic into dispatcher signals.
type Gateway struct {
	entryID    string
	dispatch   *dispatcher.Dispatcher
	writeState func(entity.Entity)
	metrics    GatewayMetrics

	mu         sync.RWMutex
	nodes      map[int]*Node
	discovered map[DevID]bool
	unload     []func()

	devMu   sync.Mutex
	devices map[string]map[DevID]entity.Entity // domain -> created entities
}

type GatewayOption func(*Gateway)

// WithStateWriter sets the callback that writes an entity's state after
// the gateway reports a change for it.
func WithStateWriter(fn func(entity.Entity)) GatewayOption {
	return func(g *Gateway) { g.writeState = fn }
}

func WithGatewayMetrics(m GatewayMetrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

func NewGateway(entryID string, d *dispatcher.Dispatcher, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		entryID:    entryID,
		dispatch:   d,
		writeState: func(entity.Entity) {},
		nodes:      make(map[int]*Node),
		discovered: make(map[DevID]bool),
		devices:    make(map[string]map[DevID]entity.Entity),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) EntryID() string                    { return g.entryID }
func (g *Gateway) Dispatcher() *dispatcher.Dispatcher { return g.dispatch }

// HandleLine parses and handles one protocol line.
func (g *Gateway) HandleLine(line string) error {
	msg, err := ParseMessage(line)
	if err != nil {
		if g.metrics != nil {
			g.metrics.MessageRejected(g.entryID)
		}
		return err
	}
	g.Handle(msg)
	return nil
}

// Handle applies msg to the node tree and sends the resulting signals.
// Signals are sent after the gateway lock is released.
func (g *Gateway) Handle(msg Message) {
	if g.metrics != nil {
		g.metrics.MessageHandled(g.entryID, msg.Command)
	}
	switch msg.Command {
	case CommandPresentation:
		g.handlePresentation(msg)
	case CommandSet:
		g.handleSet(msg)
	case CommandInternal:
		g.handleInternal(msg)
	default:
		log.Debug().Str("gateway", g.entryID).Str("command", msg.Command.String()).Msg("ignoring message")
	}
}

func (g *Gateway) node(id int) *Node {
	n, ok := g.nodes[id]
	if !ok {
		n = &Node{ID: id, BatteryLevel: -1, Children: make(map[int]*Child)}
		g.nodes[id] = n
	}
	return n
}

func (g *Gateway) handlePresentation(msg Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.node(msg.NodeID)
	if msg.ChildID == NodeChildID {
		return
	}
	p := Presentation(msg.Type)
	if !p.Valid() {
		log.Warn().Str("gateway", g.entryID).Int("node", msg.NodeID).Int("child", msg.ChildID).Int("type", msg.Type).Msg("unknown presentation type")
	}
	c, ok := n.Children[msg.ChildID]
	if !ok {
		c = &Child{ID: msg.ChildID, Values: make(map[ValueType]string)}
		n.Children[msg.ChildID] = c
	}
	c.Type = p
	c.Description = msg.Payload
	log.Debug().Str("gateway", g.entryID).Int("node", msg.NodeID).Int("child", msg.ChildID).Str("type", p.String()).Msg("child presented")
}

func (g *Gateway) handleSet(msg Message) {
	vt := ValueType(msg.Type)

	g.mu.Lock()
	n, ok := g.nodes[msg.NodeID]
	var c *Child
	if ok {
		c, ok = n.Children[msg.ChildID]
	}
	if !ok {
		g.mu.Unlock()
		log.Warn().Str("gateway", g.entryID).Int("node", msg.NodeID).Int("child", msg.ChildID).Msg("set for child that was never presented")
		return
	}
	c.Values[vt] = msg.Payload

	newDevices := make(map[string][]DevID)
	for domain, types := range PlatformTypes {
		allowed, ok := types[c.Type]
		if !ok || !containsValueType(allowed, vt) {
			continue
		}
		id := DevID{GatewayID: g.entryID, NodeID: msg.NodeID, ChildID: msg.ChildID, ValueType: vt}
		if g.discovered[id] {
			continue
		}
		g.discovered[id] = true
		newDevices[domain] = append(newDevices[domain], id)
	}
	g.mu.Unlock()

	domains := make([]string, 0, len(newDevices))
	for d := range newDevices {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		ids := newDevices[domain]
		log.Info().Str("gateway", g.entryID).Str("domain", domain).Int("devices", len(ids)).Msg("discovered devices")
		if g.metrics != nil {
			g.metrics.DevicesDiscovered(g.entryID, domain, len(ids))
		}
		g.dispatch.Send(DiscoverySignal(g.entryID, domain), DiscoveryInfo{Devices: ids})
	}
	g.dispatch.Send(ChildSignal(g.entryID, msg.NodeID, msg.ChildID, vt), nil)
}

func (g *Gateway) handleInternal(msg Message) {
	g.mu.Lock()
	n := g.node(msg.NodeID)
	notify := false
	switch msg.Type {
	case ISketchName:
		n.SketchName = msg.Payload
	case ISketchVersion:
		n.SketchVersion = msg.Payload
	case IBatteryLevel:
		if v, err := strconv.Atoi(msg.Payload); err == nil {
			n.BatteryLevel = v
			notify = true
		}
	case IHeartbeatResponse:
		if v, err := strconv.Atoi(msg.Payload); err == nil {
			n.Heartbeat = v
			notify = true
		}
	case IGatewayReady:
		log.Info().Str("gateway", g.entryID).Msg("gateway ready")
	}
	g.mu.Unlock()

	if notify {
		g.dispatch.Send(NodeSignal(g.entryID, msg.NodeID), nil)
	}
}

func containsValueType(list []ValueType, vt ValueType) bool {
	for _, v := range list {
		if v == vt {
			return true
		}
	}
	return false
}

// NodeSnapshot returns a copy of the node and its children.
func (g *Gateway) NodeSnapshot(nodeID int) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return Node{}, false
	}
	out := *n
	out.Children = make(map[int]*Child, len(n.Children))
	for id, c := range n.Children {
		cc := *c
		cc.Values = make(map[ValueType]string, len(c.Values))
		for k, v := range c.Values {
			cc.Values[k] = v
		}
		out.Children[id] = &cc
	}
	return out, true
}

// Child returns a copy of one child.
func (g *Gateway) Child(nodeID, childID int) (Child, bool) {
	n, ok := g.NodeSnapshot(nodeID)
	if !ok {
		return Child{}, false
	}
	c, ok := n.Children[childID]
	if !ok {
		return Child{}, false
	}
	return *c, true
}

// platformDevices returns the entities already created for domain.
// Callers must hold g.devMu.
func (g *Gateway) platformDevices(domain string) map[DevID]entity.Entity {
	m, ok := g.devices[domain]
	if !ok {
		m = make(map[DevID]entity.Entity)
		g.devices[domain] = m
	}
	return m
}

// OnUnload registers fn to run when the gateway is unloaded.
func (g *Gateway) OnUnload(fn func()) {
	g.mu.Lock()
	g.unload = append(g.unload, fn)
	g.mu.Unlock()
}

// Unload runs every registered unload callback once, newest first.
func (g *Gateway) Unload() {
	g.mu.Lock()
	fns := g.unload
	g.unload = nil
	g.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
	log.Info().Str("gateway", g.entryID).Int("callbacks", len(fns)).Msg("gateway unloaded")
}

func (g *Gateway) String() string { return fmt.Sprintf("gateway(%s)", g.entryID) }
