package model

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/protomodel/errors"
)

// metaLock is the registry-wide metadata lock. It is a one-slot semaphore
// so acquisition can be bounded by a timeout.
type metaLock struct {
	sem          chan struct{}
	onContention func(int64)
	log          *zap.Logger
	timeout      time.Duration
	contentions  atomic.Int64
}

func newMetaLock(timeout time.Duration, onContention func(int64), log *zap.Logger) *metaLock {
	return &metaLock{
		sem:          make(chan struct{}, 1),
		timeout:      timeout,
		onContention: onContention,
		log:          log,
	}
}

func (l *metaLock) acquire() error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}

	n := l.contentions.Add(1)
	metricLockContentions.Inc()
	if l.onContention != nil {
		l.onContention(n)
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-timer.C:
		l.log.Warn("metadata lock timeout",
			zap.Duration("timeout", l.timeout),
			zap.Int64("contentions", n))
		return errors.MetadataTimeout(l.timeout, n)
	}
}

func (l *metaLock) release() {
	<-l.sem
}

// Contentions returns how many lock attempts had to wait so far.
func (r *Registry) Contentions() int64 {
	return r.lock.contentions.Load()
}

// withLock runs fn holding the metadata lock. fn must not call back into
// any locking registry operation.
func (r *Registry) withLock(fn func() error) error {
	if err := r.lock.acquire(); err != nil {
		return err
	}
	defer r.lock.release()
	return fn()
}
