package transaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"catalogd/internal/logger"
	"catalogd/internal/types"

	"github.com/google/uuid"
)

// ErrStopped is returned by Submit once the worker no longer accepts requests.
var ErrStopped = errors.New("data-access worker stopped")

// ErrInvalidArgument marks requests the worker refuses before touching storage.
var ErrInvalidArgument = errors.New("invalid argument")

// Store is the storage surface the worker drives. *storage.Catalog implements it.
type Store interface {
	AddLookup(ctx context.Context, t types.Table, name string) (int64, error)
	LookupByName(ctx context.Context, t types.Table, name string) (*types.Lookup, error)
	LookupByID(ctx context.Context, t types.Table, id int64) (*types.Lookup, error)
	ListLookups(ctx context.Context, t types.Table) ([]types.Lookup, error)
	DeleteLookup(ctx context.Context, t types.Table, name string) error

	AddItem(ctx context.Context, in types.NewItem) (int64, error)
	ItemByID(ctx context.Context, id int64) (*types.Item, error)
	ItemByName(ctx context.Context, name string) (*types.Item, error)
	ListItems(ctx context.Context) ([]types.Item, error)
	DeleteItem(ctx context.Context, id int64) error
	SetItemImage(ctx context.Context, id int64, imagePath string) error

	AddUser(ctx context.Context, username, password string, isAdmin bool) (int64, error)
	UserByName(ctx context.Context, username string) (*types.User, error)
	ListUsers(ctx context.Context) ([]types.User, error)
	DeleteUser(ctx context.Context, username string) error
	Authenticate(ctx context.Context, username, password string) (bool, error)
	IsAdmin(ctx context.Context, username string) (bool, error)

	Search(ctx context.Context, f types.SearchFilter) ([]types.Item, error)
	Snapshot(ctx context.Context, dst string) (int64, error)
}

// Manager is the data-access worker: the only goroutine that touches Store.
// Requests run one at a time in arrival order.
type Manager struct {
	Storage  Store
	Requests chan types.RequestContext

	cfg      types.ServerConfig
	stop     chan struct{} // closed by Stop after the sentinel is queued
	done     chan struct{} // closed when the loop exits
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

func NewManager(storage Store, cfg types.ServerConfig) *Manager {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 128
	}
	return &Manager{
		Storage:  storage,
		Requests: make(chan types.RequestContext, depth),
		cfg:      cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (tm *Manager) Start() {
	tm.startMu.Lock()
	defer tm.startMu.Unlock()
	if tm.started {
		return
	}
	tm.started = true
	go tm.dispatch()
}

// Stop queues the stop sentinel behind every request already submitted,
// waits for the worker to drain up to it, and returns once the worker exited.
func (tm *Manager) Stop() {
	tm.stopOnce.Do(func() {
		tm.startMu.Lock()
		started := tm.started
		tm.started = true
		tm.startMu.Unlock()

		close(tm.stop)
		if !started {
			close(tm.done)
			return
		}
		// A zero RequestContext (nil Params) is the sentinel.
		tm.Requests <- types.RequestContext{}
	})
	<-tm.done
}

// Done is closed once the worker has exited.
func (tm *Manager) Done() <-chan struct{} {
	return tm.done
}

func (tm *Manager) dispatch() {
	defer close(tm.done)
	for req := range tm.Requests {
		if req.Params == nil {
			logger.Info("Transaction Manager: stop signal received")
			tm.rejectQueued()
			return
		}
		resp := tm.handle(req)
		// RespChan has capacity 1 and exactly one response is sent per request,
		// so this never blocks even if the caller gave up waiting.
		select {
		case req.RespChan <- resp:
		default:
			logger.Warn("Transaction Manager: dropped response for %s", req.ReqID)
		}
	}
}

// rejectQueued answers anything that slipped in behind the sentinel.
func (tm *Manager) rejectQueued() {
	for {
		select {
		case req := <-tm.Requests:
			if req.RespChan != nil {
				select {
				case req.RespChan <- types.ResponseContext{ReqID: req.ReqID, Error: ErrStopped}:
				default:
				}
			}
		default:
			return
		}
	}
}

// Submit enqueues req and blocks until the worker answers it. Cancelling ctx
// stops the wait; a request already handed to the worker still runs.
func (tm *Manager) Submit(ctx context.Context, req types.Request) (interface{}, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	rc := types.RequestContext{
		ReqID:     uuid.NewString(),
		Operation: req.Method(),
		Params:    req,
		RespChan:  make(chan types.ResponseContext, 1),
	}

	select {
	case <-tm.stop:
		return nil, ErrStopped
	default:
	}
	select {
	case tm.Requests <- rc:
	case <-tm.stop:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-rc.RespChan:
		return resp.Data, resp.Error
	case <-tm.done:
		select {
		case resp := <-rc.RespChan:
			return resp.Data, resp.Error
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (tm *Manager) handle(req types.RequestContext) (resp types.ResponseContext) {
	resp.ReqID = req.ReqID
	logger.Debug("Transaction Manager: handling request %s (op: %s)", req.ReqID, req.Operation)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Transaction Manager: request %s panicked: %v", req.ReqID, r)
			resp.Data = nil
			resp.Error = fmt.Errorf("internal error: %v", r)
		}
	}()

	// Storage calls are short and always run to completion.
	ctx := context.Background()
	resp.Data, resp.Error = tm.execute(ctx, req.Params)
	if resp.Error != nil {
		resp.Data = nil
	}
	return resp
}

func (tm *Manager) execute(ctx context.Context, params types.Request) (interface{}, error) {
	s := tm.Storage
	switch p := params.(type) {

	case types.GetRequest:
		return tm.get(ctx, p)

	case types.SetLookupRequest:
		return s.AddLookup(ctx, p.Table, p.Name)

	case types.SetItemRequest:
		return s.AddItem(ctx, p.Item)

	case types.SetUserRequest:
		return s.AddUser(ctx, p.Username, p.Password, p.IsAdmin)

	case types.DeleteRequest:
		return nil, tm.delete(ctx, p)

	case types.AuthenticateRequest:
		return s.Authenticate(ctx, p.Username, p.Password)

	case types.IsAdminRequest:
		return s.IsAdmin(ctx, p.Username)

	case types.SearchRequest:
		return s.Search(ctx, p.Filter)

	case types.AttachImageRequest:
		return nil, s.SetItemImage(ctx, p.ItemID, p.ImagePath)

	case types.SnapshotRequest:
		return tm.snapshot(ctx, p)

	default:
		return nil, fmt.Errorf("operation not implemented: %T", params)
	}
}

func (tm *Manager) get(ctx context.Context, p types.GetRequest) (interface{}, error) {
	s := tm.Storage
	switch {
	case p.Table == types.TableItems:
		switch {
		case p.ID != nil:
			return s.ItemByID(ctx, *p.ID)
		case p.Name != nil:
			return s.ItemByName(ctx, *p.Name)
		}
		return s.ListItems(ctx)

	case p.Table.IsLookup():
		switch {
		case p.ID != nil:
			return s.LookupByID(ctx, p.Table, *p.ID)
		case p.Name != nil:
			return s.LookupByName(ctx, p.Table, *p.Name)
		}
		return s.ListLookups(ctx, p.Table)

	case p.Table == types.TableUsers:
		if p.Name != nil {
			return s.UserByName(ctx, *p.Name)
		}
		return s.ListUsers(ctx)
	}
	return nil, fmt.Errorf("unknown table %q", p.Table)
}

func (tm *Manager) delete(ctx context.Context, p types.DeleteRequest) error {
	s := tm.Storage
	switch {
	case p.Table == types.TableItems:
		if p.ID == nil {
			return fmt.Errorf("%w: id is required", ErrInvalidArgument)
		}
		return s.DeleteItem(ctx, *p.ID)
	case p.Table.IsLookup():
		return s.DeleteLookup(ctx, p.Table, p.Name)
	case p.Table == types.TableUsers:
		return s.DeleteUser(ctx, p.Name)
	}
	return fmt.Errorf("unknown table %q", p.Table)
}

func (tm *Manager) snapshot(ctx context.Context, p types.SnapshotRequest) (interface{}, error) {
	if tm.cfg.SnapshotDir == "" {
		return nil, fmt.Errorf("%w: snapshots are disabled", ErrInvalidArgument)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: snapshot name %q", ErrInvalidArgument, p.Name)
	}
	dst := filepath.Join(tm.cfg.SnapshotDir, name+".snap")
	n, err := tm.Storage.Snapshot(ctx, dst)
	if err != nil {
		return nil, err
	}
	return types.SnapshotInfo{Path: dst, Size: n}, nil
}
