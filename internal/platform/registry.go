package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"sensorbridge/internal/entity"
)

// maxParallelUpdates bounds concurrent first updates when entities are added.
const maxParallelUpdates = 8

// ErrUnavailable is reported to Metrics when an update returned without
// error but left the entity unavailable.
var ErrUnavailable = errors.New("entity unavailable after update")

// StateWriter receives every state the registry writes.
type StateWriter interface {
	WriteState(ctx context.Context, s entity.Snapshot) error
}

// Metrics is notified about registry activity. Nil disables it.
type Metrics interface {
	EntityAdded(domain string)
	UpdateObserve(domain string, d time.Duration, err error)
	SetAvailable(entityID string, available bool)
}

// AddEntities is handed to adapters so they can register their entities.
type AddEntities func(entities []entity.Entity, updateBeforeAdd bool)

// Registry owns every entity known to the process and writes their state.
type Registry struct {
	writers []StateWriter
	poller  *Poller
	metrics Metrics
	now     func() time.Time

	mu       sync.RWMutex
	entities map[string]entity.Entity // entityID -> entity
	ids      map[entity.Entity]string
	unique   map[string]string // uniqueID -> entityID
}

func NewRegistry(poller *Poller, m Metrics, writers ...StateWriter) *Registry {
	return &Registry{
		writers:  writers,
		poller:   poller,
		metrics:  m,
		now:      time.Now,
		entities: make(map[string]entity.Entity),
		ids:      make(map[entity.Entity]string),
		unique:   make(map[string]string),
	}
}

// SetLocation renders snapshot timestamps in loc.
func (r *Registry) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	r.now = func() time.Time { return time.Now().In(loc) }
}

// Adder binds Add to ctx for adapters that only know the AddEntities shape.
func (r *Registry) Adder(ctx context.Context) AddEntities {
	return func(entities []entity.Entity, updateBeforeAdd bool) {
		r.Add(ctx, entities, updateBeforeAdd)
	}
}

// Add registers entities. With updateBeforeAdd, polled entities are
// refreshed concurrently first so their initial state is real. Entities
// whose unique id is already registered are skipped.
func (r *Registry) Add(ctx context.Context, entities []entity.Entity, updateBeforeAdd bool) {
	if updateBeforeAdd {
		p := pool.New().WithMaxGoroutines(maxParallelUpdates)
		for _, e := range entities {
			u, ok := e.(entity.Updater)
			if !ok {
				continue
			}
			p.Go(func() { r.runUpdate(ctx, e, u) })
		}
		p.Wait()
	}

	for _, e := range entities {
		id, added := r.register(e)
		if !added {
			log.Debug().Str("unique_id", e.UniqueID()).Msg("entity already registered")
			continue
		}
		log.Info().Str("entity", id).Str("name", e.Name()).Msg("added entity")
		if r.metrics != nil {
			r.metrics.EntityAdded(e.Domain())
		}
		r.WriteState(ctx, e)

		if u, ok := e.(entity.Updater); ok && r.poller != nil {
			r.poller.Track(ctx, id, func(ctx context.Context) {
				r.runUpdate(ctx, e, u)
				r.WriteState(ctx, e)
			})
		}
	}
}

func (r *Registry) register(e entity.Entity) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if uid := e.UniqueID(); uid != "" {
		if _, exists := r.unique[uid]; exists {
			return "", false
		}
	}
	base := e.Domain() + "." + entity.ObjectID(e.Name())
	id := base
	for n := 2; ; n++ {
		if _, taken := r.entities[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
	r.entities[id] = e
	r.ids[e] = id
	if uid := e.UniqueID(); uid != "" {
		r.unique[uid] = id
	}
	return id, true
}

func (r *Registry) runUpdate(ctx context.Context, e entity.Entity, u entity.Updater) {
	start := time.Now()
	err := u.Update(ctx)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("name", e.Name()).Msg("entity update failed")
	}
	// A nil error from an entity left unavailable still counts as failed.
	if err == nil && !e.Available() {
		err = ErrUnavailable
		log.Debug().Str("name", e.Name()).Msg("entity unavailable after update")
	}
	if r.metrics != nil {
		r.metrics.UpdateObserve(e.Domain(), elapsed, err)
	}
}

// WriteState renders e and hands it to every writer. Writer errors are
// logged and do not stop the remaining writers.
func (r *Registry) WriteState(ctx context.Context, e entity.Entity) {
	id, ok := r.EntityID(e)
	if !ok {
		log.Warn().Str("name", e.Name()).Msg("write state for unregistered entity")
		return
	}
	snap := entity.Snap(e, id, r.now())
	if r.metrics != nil {
		r.metrics.SetAvailable(id, snap.Available)
	}
	for _, w := range r.writers {
		if err := w.WriteState(ctx, snap); err != nil {
			log.Error().Err(err).Str("entity", id).Msg("state write failed")
		}
	}
}

func (r *Registry) EntityID(e entity.Entity) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[e]
	return id, ok
}

// EntityIDs returns every registered id in sorted order.
func (r *Registry) EntityIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
