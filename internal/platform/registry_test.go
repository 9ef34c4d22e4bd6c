package platform

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorbridge/internal/entity"
)

type fakeEntity struct {
	name     string
	uniqueID string
	updates  atomic.Int32
	fail     bool

	mu        sync.Mutex
	available bool
}

func (f *fakeEntity) Domain() string             { return "sensor" }
func (f *fakeEntity) Name() string               { return f.name }
func (f *fakeEntity) UniqueID() string           { return f.uniqueID }
func (f *fakeEntity) State() any                 { return "ok" }
func (f *fakeEntity) Attributes() map[string]any { return nil }
func (f *fakeEntity) DeviceClass() string        { return "" }
func (f *fakeEntity) Icon() string               { return "" }

func (f *fakeEntity) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeEntity) Update(ctx context.Context) error {
	f.updates.Add(1)
	if f.fail {
		return errors.New("boom")
	}
	f.mu.Lock()
	f.available = true
	f.mu.Unlock()
	return nil
}

// stuckEntity absorbs its failures the way adapters do: Update returns
// nil and the entity stays unavailable.
type stuckEntity struct {
	fakeEntity
}

func (s *stuckEntity) Update(ctx context.Context) error {
	s.updates.Add(1)
	return nil
}

type observed struct {
	domain string
	err    error
}

type recordingMetrics struct {
	mu        sync.Mutex
	updates   []observed
	available map[string]bool
}

func (m *recordingMetrics) EntityAdded(domain string) {}

func (m *recordingMetrics) UpdateObserve(domain string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, observed{domain: domain, err: err})
}

func (m *recordingMetrics) SetAvailable(entityID string, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.available == nil {
		m.available = make(map[string]bool)
	}
	m.available[entityID] = available
}

type recordingWriter struct {
	mu    sync.Mutex
	snaps []entity.Snapshot
	err   error
}

func (w *recordingWriter) WriteState(ctx context.Context, s entity.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snaps = append(w.snaps, s)
	return w.err
}

func (w *recordingWriter) all() []entity.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]entity.Snapshot(nil), w.snaps...)
}

func TestAddUpdatesBeforeWriting(t *testing.T) {
	w := &recordingWriter{}
	r := NewRegistry(nil, nil, w)
	a := &fakeEntity{name: "Stop A", uniqueID: "a"}
	b := &fakeEntity{name: "Stop B", uniqueID: "b"}

	r.Add(context.Background(), []entity.Entity{a, b}, true)

	assert.EqualValues(t, 1, a.updates.Load())
	assert.EqualValues(t, 1, b.updates.Load())
	snaps := w.all()
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		assert.Equal(t, "ok", s.State)
	}
	assert.Equal(t, []string{"sensor.stop_a", "sensor.stop_b"}, r.EntityIDs())
}

func TestAddWithoutUpdateWritesUnavailable(t *testing.T) {
	w := &recordingWriter{}
	r := NewRegistry(nil, nil, w)
	a := &fakeEntity{name: "Stop A"}

	r.Add(context.Background(), []entity.Entity{a}, false)

	assert.EqualValues(t, 0, a.updates.Load())
	snaps := w.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, entity.StateUnavailable, snaps[0].State)
}

func TestAddDeduplicatesByUniqueID(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add(context.Background(), []entity.Entity{&fakeEntity{name: "x", uniqueID: "same"}}, false)
	r.Add(context.Background(), []entity.Entity{&fakeEntity{name: "y", uniqueID: "same"}}, false)

	assert.Equal(t, []string{"sensor.x"}, r.EntityIDs())
}

func TestAddSuffixesCollidingNames(t *testing.T) {
	r := NewRegistry(nil, nil)
	first := &fakeEntity{name: "De Lijn"}
	second := &fakeEntity{name: "De Lijn"}
	r.Add(context.Background(), []entity.Entity{first, second}, false)

	id, ok := r.EntityID(second)
	require.True(t, ok)
	assert.Equal(t, "sensor.de_lijn_2", id)
	id, ok = r.EntityID(first)
	require.True(t, ok)
	assert.Equal(t, "sensor.de_lijn", id)
}

func TestUpdateErrorIsContained(t *testing.T) {
	w := &recordingWriter{err: errors.New("writer down")}
	r := NewRegistry(nil, nil, w)
	e := &fakeEntity{name: "bad", fail: true}

	assert.NotPanics(t, func() {
		r.Add(context.Background(), []entity.Entity{e}, true)
	})
	require.Len(t, w.all(), 1)
	assert.False(t, w.all()[0].Available)
}

func TestAddStartsPolling(t *testing.T) {
	poller := NewPoller(10 * time.Millisecond)
	defer poller.Stop()
	w := &recordingWriter{}
	r := NewRegistry(poller, nil, w)
	e := &fakeEntity{name: "polled"}

	r.Add(context.Background(), []entity.Entity{e}, false)

	require.Eventually(t, func() bool { return e.updates.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, poller.Running())
	assert.GreaterOrEqual(t, len(w.all()), 2)
}

func TestUnavailableAfterUpdateCountsAsError(t *testing.T) {
	m := &recordingMetrics{}
	r := NewRegistry(nil, m)
	stuck := &stuckEntity{fakeEntity{name: "Stop A", uniqueID: "a"}}
	healthy := &fakeEntity{name: "Stop B", uniqueID: "b"}

	r.Add(context.Background(), []entity.Entity{stuck, healthy}, true)

	require.Len(t, m.updates, 2)
	var failed, ok int
	for _, u := range m.updates {
		if errors.Is(u.err, ErrUnavailable) {
			failed++
		} else if u.err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, ok)
	assert.False(t, m.available["sensor.stop_a"])
	assert.True(t, m.available["sensor.stop_b"])
}

func TestUpdateErrorIsReportedAsIs(t *testing.T) {
	m := &recordingMetrics{}
	r := NewRegistry(nil, m)
	r.Add(context.Background(), []entity.Entity{&fakeEntity{name: "bad", fail: true}}, true)

	require.Len(t, m.updates, 1)
	require.Error(t, m.updates[0].err)
	assert.NotErrorIs(t, m.updates[0].err, ErrUnavailable)
}

func TestSetLocationRendersTimestamps(t *testing.T) {
	brussels, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	w := &recordingWriter{}
	r := NewRegistry(nil, nil, w)
	r.SetLocation(brussels)
	r.SetLocation(nil)

	r.Add(context.Background(), []entity.Entity{&fakeEntity{name: "x"}}, false)

	snaps := w.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, "Europe/Brussels", snaps[0].Timestamp.Location().String())
}
