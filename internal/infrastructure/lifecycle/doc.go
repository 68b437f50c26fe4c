/*
Package lifecycle provides process-wide cancellation and graceful shutdown.

# Overview

A Handler owns the single root context of a binary. Every worker-spawning
and connection-accepting component receives that context, and every unit of
work is admitted through the handler so shutdown can join it.

# States

  - Running: work is admitted
  - Draining: the root context is cancelled, Admit fails with ErrDraining,
    Shutdown waits for admitted units (bounded by DrainTimeout)
  - Terminated: cleanups have run, Done is closed

Transitions:

	Running --[interrupt | Shutdown]-> Draining --[joined | timeout]-> Terminated

# Usage

	lc := lifecycle.New("relay", lifecycle.Settings{
		DrainTimeout: 10 * time.Second,
		OnStateChange: func(name string, from, to lifecycle.State) {
			metrics.SetLifecycleState(int(to))
		},
	}, logger)
	stop := lc.Watch(os.Interrupt, syscall.SIGTERM)
	defer stop()

	lc.OnRelease(listener.Close)
	_ = lc.Go(func(ctx context.Context) { server.Serve(ctx, listener) })

	<-lc.Done()

Goroutines cannot be killed. Units still running when the timeout elapses
are abandoned; they see the cancelled context at their next suspension
point and end with the process.
*/
package lifecycle
