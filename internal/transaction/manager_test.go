package transaction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"catalogd/internal/auth"
	"catalogd/internal/storage"
	"catalogd/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore embeds Store so only the methods a test needs are implemented;
// anything else panics, which the worker turns into an error response.
type fakeStore struct {
	Store

	mu       sync.Mutex
	order    []string
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (f *fakeStore) Search(ctx context.Context, filter types.SearchFilter) ([]types.Item, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(f.delay)
	v, _ := filter.Value(types.AttrName)
	f.mu.Lock()
	f.order = append(f.order, v)
	f.mu.Unlock()
	return []types.Item{{Name: v}}, nil
}

func searchFor(name string) types.SearchRequest {
	f := types.NewSearchFilter()
	f.Values[types.AttrName] = &name
	f.Active[types.AttrName] = true
	return types.SearchRequest{Filter: f}
}

func TestManager_SerializesConcurrentCallers(t *testing.T) {
	fs := &fakeStore{delay: time.Millisecond}
	tm := NewManager(fs, types.ServerConfig{})
	tm.Start()
	defer tm.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i%26))
			data, err := tm.Submit(context.Background(), searchFor(name))
			if !assert.NoError(t, err) {
				return
			}
			items := data.([]types.Item)
			// Each caller receives its own answer.
			assert.Equal(t, name, items[0].Name)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.maxSeen))
}

func TestManager_FIFOAndDrainOnStop(t *testing.T) {
	fs := &fakeStore{}
	tm := NewManager(fs, types.ServerConfig{QueueDepth: 16})

	var chans []chan types.ResponseContext
	for _, name := range []string{"first", "second", "third"} {
		rc := types.RequestContext{
			ReqID:     name,
			Operation: types.OpSearch,
			Params:    searchFor(name),
			RespChan:  make(chan types.ResponseContext, 1),
		}
		tm.Requests <- rc
		chans = append(chans, rc.RespChan)
	}

	tm.Start()
	tm.Stop()

	assert.Equal(t, []string{"first", "second", "third"}, fs.order)
	for _, ch := range chans {
		resp := <-ch
		assert.NoError(t, resp.Error)
	}

	_, err := tm.Submit(context.Background(), searchFor("late"))
	assert.ErrorIs(t, err, ErrStopped)
	select {
	case <-tm.Done():
	default:
		t.Fatal("worker should have exited")
	}

	// Stop is idempotent.
	tm.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	tm := NewManager(&fakeStore{}, types.ServerConfig{})
	tm.Stop()
	_, err := tm.Submit(context.Background(), searchFor("x"))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestManager_PanicIsContained(t *testing.T) {
	tm := NewManager(&fakeStore{}, types.ServerConfig{})
	tm.Start()
	defer tm.Stop()

	// fakeStore does not implement AddLookup: the embedded nil Store panics.
	_, err := tm.Submit(context.Background(), types.SetLookupRequest{Table: types.TableRooms, Name: "Kitchen"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal error")

	_, err = tm.Submit(context.Background(), searchFor("still alive"))
	assert.NoError(t, err)

	_, err = tm.Submit(context.Background(), nil)
	assert.Error(t, err)
}

func TestManager_SubmitHonoursContext(t *testing.T) {
	fs := &fakeStore{delay: 50 * time.Millisecond}
	tm := NewManager(fs, types.ServerConfig{})
	tm.Start()
	defer tm.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := tm.Submit(ctx, searchFor("slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newCatalogManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	cat, err := storage.Open(context.Background(), storage.Options{
		Path:   filepath.Join(dir, "catalog.db"),
		Hasher: auth.NewHasher(auth.FastArgon2Params()),
	})
	require.NoError(t, err)
	snapDir := filepath.Join(dir, "snapshots")
	tm := NewManager(cat, types.ServerConfig{SnapshotDir: snapDir})
	tm.Start()
	t.Cleanup(func() {
		tm.Stop()
		_ = cat.Close()
	})
	return tm, snapDir
}

func TestManager_CatalogOperations(t *testing.T) {
	tm, _ := newCatalogManager(t)
	ctx := context.Background()
	submit := func(r types.Request) (interface{}, error) { return tm.Submit(ctx, r) }

	for _, r := range []types.Request{
		types.SetLookupRequest{Table: types.TableRooms, Name: "Kitchen"},
		types.SetLookupRequest{Table: types.TableTypes, Name: "Chair"},
		types.SetLookupRequest{Table: types.TableColors, Name: "Red"},
	} {
		id, err := submit(r)
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
	}

	_, err := submit(types.SetLookupRequest{Table: types.TableRooms, Name: "Kitchen"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	id, err := submit(types.SetItemRequest{Item: types.NewItem{
		Name: "C1", Room: "Kitchen", Type: "Chair", Color: "Red", XDimension: 10, YDimension: 20,
	}})
	require.NoError(t, err)
	itemID := id.(int64)

	data, err := submit(types.GetRequest{Table: types.TableItems, ID: &itemID})
	require.NoError(t, err)
	item := data.(*types.Item)
	assert.Equal(t, "C1", item.Name)
	assert.Nil(t, item.ImagePath)

	data, err = submit(types.GetRequest{Table: types.TableRooms})
	require.NoError(t, err)
	assert.Equal(t, []types.Lookup{{ID: 1, Name: "Kitchen"}}, data)

	_, err = submit(types.DeleteRequest{Table: types.TableRooms, Name: "Kitchen"})
	assert.ErrorIs(t, err, storage.ErrIntegrity)

	_, err = submit(types.DeleteRequest{Table: types.TableItems, ID: &itemID})
	require.NoError(t, err)
	_, err = submit(types.DeleteRequest{Table: types.TableRooms, Name: "Kitchen"})
	require.NoError(t, err)

	ok, err := submit(types.AuthenticateRequest{Username: "admin", Password: "admin"})
	require.NoError(t, err)
	assert.Equal(t, true, ok)
	admin, err := submit(types.IsAdminRequest{Username: "admin"})
	require.NoError(t, err)
	assert.Equal(t, true, admin)

	_, err = submit(types.GetRequest{Table: types.TableItems, ID: &itemID})
	var nf *storage.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Fourniture", nf.Thing)
}

func TestManager_Snapshot(t *testing.T) {
	tm, snapDir := newCatalogManager(t)
	ctx := context.Background()

	data, err := tm.Submit(ctx, types.SnapshotRequest{Name: "nightly"})
	require.NoError(t, err)
	info := data.(types.SnapshotInfo)
	assert.Equal(t, filepath.Join(snapDir, "nightly.snap"), info.Path)
	st, err := os.Stat(info.Path)
	require.NoError(t, err)
	assert.Equal(t, st.Size(), info.Size)

	for _, bad := range []string{"", "../escape", ".hidden", "a/b"} {
		_, err := tm.Submit(ctx, types.SnapshotRequest{Name: bad})
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
}
