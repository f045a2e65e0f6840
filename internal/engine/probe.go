package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/freeeve/uci"
)

const defaultProbeTTL = 5 * time.Second

// Probe starts the engine once, completes a UCI option handshake and closes
// it. It reports whether the configured binary is usable.
//
// A result is reused for a few seconds and concurrent callers share one
// handshake. The handshake process holds a session slot, so probes count
// against MaxSessions like analyses do.
func (r *Runner) Probe(ctx context.Context) error {
	if ok, err := r.cachedProbe(); ok {
		return err
	}

	ch := r.probes.DoChan("probe", func() (any, error) {
		err := r.runProbe(context.WithoutCancel(ctx))
		r.probeMu.Lock()
		r.probeAt, r.probeErr = time.Now(), err
		r.probeMu.Unlock()
		return nil, err
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: probe: %v", ErrEngineUnavailable, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

func (r *Runner) cachedProbe() (bool, error) {
	r.probeMu.Lock()
	defer r.probeMu.Unlock()
	if r.probeTTL <= 0 || r.probeAt.IsZero() || time.Since(r.probeAt) >= r.probeTTL {
		return false, nil
	}
	return true, r.probeErr
}

// runProbe waits at most one session timeout for a slot and for the
// handshake. The uci package takes no context, so a handshake that outlives
// the timeout keeps its slot until it returns.
func (r *Runner) runProbe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: probe: waiting for session slot: %v", ErrEngineUnavailable, err)
	}

	errc := make(chan error, 1)
	go func() {
		err := probe(r.cfg.Path, r.cfg.Args)
		r.sem.Release(1)
		errc <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: probe: %v", ErrEngineUnavailable, ctx.Err())
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("%w: probe: %v", ErrEngineUnavailable, err)
		}
		return nil
	}
}

func probe(path string, args []string) error {
	eng, err := uci.NewEngine(path, args...)
	if err != nil {
		return err
	}
	defer eng.Close()

	opts := uci.Options{
		Hash:    16,
		Threads: 1,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	return eng.SetOptions(opts)
}
