package lock

import (
	"context"
	"fmt"
	"time"

	"agrirent/internal/domain"
	"agrirent/internal/repository"
)

// Guard runs a unit of work inside the equipment's critical section and a
// single database transaction. OnCommit runs after a successful commit, once
// the lock is released.
type Guard struct {
	store    *repository.Store
	locker   Locker
	timeout  time.Duration
	onCommit []func()
}

func NewGuard(store *repository.Store, locker Locker, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Guard{store: store, locker: locker, timeout: timeout}
}

// OnCommit registers a hook run after every committed unit of work.
func (g *Guard) OnCommit(fn func()) {
	g.onCommit = append(g.onCommit, fn)
}

func (g *Guard) Run(ctx context.Context, equipmentID int64, fn func(tx *repository.Store) error) error {
	if err := g.run(ctx, equipmentID, fn); err != nil {
		return err
	}
	for _, hook := range g.onCommit {
		hook()
	}
	return nil
}

func (g *Guard) run(ctx context.Context, equipmentID int64, fn func(tx *repository.Store) error) error {
	key := domain.LockKey(equipmentID)

	lockCtx, cancel := context.WithTimeout(ctx, g.timeout)
	unlock, err := g.locker.Lock(lockCtx, key)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrBusy, key, err)
	}
	defer unlock()

	return g.store.Transaction(ctx, fn)
}
