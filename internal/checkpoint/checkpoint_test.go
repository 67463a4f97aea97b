package checkpoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taengine/internal/indicator"
	"taengine/internal/model"
	"taengine/internal/numeric"
)

// memStore is a raw model.SnapshotStore kept in memory.
type memStore struct {
	name    string
	mu      sync.Mutex
	data    []byte
	saveErr error
	readErr error
	saves   int
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) SaveSnapshotJSON(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *memStore) ReadLatestSnapshotJSON(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, m.readErr
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type recorder struct {
	mu       sync.Mutex
	saved    map[string]int
	failed   map[string]int
	restored []Source
}

func newRecorder() *recorder {
	return &recorder{saved: map[string]int{}, failed: map[string]int{}}
}

func (r *recorder) CheckpointSaved(store string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed[store]++
		return
	}
	r.saved[store]++
}

func (r *recorder) Restored(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restored = append(r.restored, src)
}

var specs = []indicator.Spec{{Type: indicator.TypeSMA, Period: 3}, {Type: indicator.TypeRSI, Period: 3}}

func warmEngine(t *testing.T) *indicator.Engine {
	t.Helper()
	e, err := indicator.NewEngine(specs)
	require.NoError(t, err)
	for _, p := range []string{"10", "11", "12", "11"} {
		it, err := model.PriceItem(numeric.MustParse(p))
		require.NoError(t, err)
		_, err = e.Process(model.Bar{Series: "NSE:SBIN", Item: it})
		require.NoError(t, err)
	}
	return e
}

func TestCheckpointer_SavesToEveryStore(t *testing.T) {
	redis, sqlite := &memStore{name: "redis"}, &memStore{name: "sqlite"}
	rec := newRecorder()
	cp := NewCheckpointer(rec, NewJSONStore(redis), NewJSONStore(sqlite))

	require.NoError(t, cp.Save(context.Background(), warmEngine(t), "42-0"))
	assert.NotEmpty(t, redis.data)
	assert.Equal(t, redis.data, sqlite.data)
	assert.Equal(t, 1, rec.saved["redis"])
	assert.Equal(t, 1, rec.saved["sqlite"])
}

func TestCheckpointer_JoinsStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	bad, good := &memStore{name: "redis", saveErr: boom}, &memStore{name: "sqlite"}
	rec := newRecorder()
	cp := NewCheckpointer(rec, NewJSONStore(bad), NewJSONStore(good))

	err := cp.Save(context.Background(), warmEngine(t), "1-0")
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, good.data, "a failing store must not stop the others")
	assert.Equal(t, 1, rec.failed["redis"])
}

func TestRestorer_PriorityChain(t *testing.T) {
	ctx := context.Background()
	primary := &memStore{name: "redis", readErr: errors.New("connection refused")}
	secondary := &memStore{name: "sqlite"}
	require.NoError(t, NewCheckpointer(nil, NewJSONStore(secondary)).Save(ctx, warmEngine(t), "7-0"))

	rec := newRecorder()
	e, src, err := NewRestorer(specs, rec, NewJSONStore(primary), NewJSONStore(secondary)).Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", src.Store)
	assert.Equal(t, "7-0", src.Cursor)
	assert.Equal(t, 1, src.Series)
	assert.False(t, src.Cold())
	assert.Equal(t, []string{"NSE:SBIN"}, e.Series())
	for _, ind := range e.Indicators("NSE:SBIN") {
		assert.Equal(t, indicator.Steady, ind.Phase(), ind.Name())
	}
	require.Len(t, rec.restored, 1)
}

func TestRestorer_SkipsCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	corrupt := &memStore{name: "redis", data: []byte(`{"version":1,"series":[`)}
	future := &memStore{name: "sqlite", data: []byte(`{"version":99,"series":[]}`)}

	e, src, err := NewRestorer(specs, nil, NewJSONStore(corrupt), NewJSONStore(future)).Restore(ctx)
	require.NoError(t, err)
	assert.True(t, src.Cold())
	assert.Empty(t, e.Series())
}

func TestRestorer_ColdStart(t *testing.T) {
	e, src, err := NewRestorer(specs, nil, NewJSONStore(&memStore{name: "redis"})).Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, src.Cold())
	assert.NotNil(t, e)

	_, _, err = NewRestorer([]indicator.Spec{{Type: indicator.TypeSMA}}, nil).Restore(context.Background())
	assert.ErrorIs(t, err, indicator.ErrInvalidParameter)
}

func TestCheckpointer_Loop(t *testing.T) {
	store := &memStore{name: "redis"}
	cp := NewCheckpointer(nil, NewJSONStore(store))
	e := warmEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cp.Loop(ctx, 10*time.Millisecond, func() (*indicator.EngineSnapshot, error) {
			return indicator.SnapshotEngine(e, "loop")
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return store.saveCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
