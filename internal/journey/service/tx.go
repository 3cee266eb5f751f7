package service

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
	"jornada/pkg/platform/sentinel"
)

// numDriverShards spreads drivers over independent locks.
const numDriverShards = 128

const defaultTxTimeout = 5 * time.Second

// ShardedTx serialises mutations per driver with striped locks. Drivers in
// different shards never wait on each other. It is the DriverTx used with
// in-memory stores; PostgreSQL deployments use the store's row locks instead.
//
// Each shard is a one-slot channel so waiting for it honours ctx.
type ShardedTx struct {
	shards  [numDriverShards]chan struct{}
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	t := &ShardedTx{timeout: timeout}
	for i := range t.shards {
		t.shards[i] = make(chan struct{}, 1)
	}
	return t
}

// RunInTx runs fn while holding driverID's shard. The deadline, either the
// caller's or the default timeout, bounds the wait for the shard as well as fn.
func (t *ShardedTx) RunInTx(ctx context.Context, driverID domain.DriverID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	lock := t.shards[shardFor(driverID)]
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for driver lock")
	}
	defer func() { <-lock }()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func shardFor(driverID domain.DriverID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(driverID.String()))
	return int(h.Sum32() % numDriverShards)
}

// txFailure codes errors raised by a DriverTx itself, such as a missing
// driver row under the PostgreSQL lock. Errors from the callback are
// already coded and pass through.
func txFailure(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrConflict):
		return translateStoreError(err, "driver")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "driver transaction timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "driver transaction failed")
}
