/*
Package workers runs one worker goroutine per tile and brings the results
back in tile order.

# Transports

A Transport decides how results travel from workers to the coordinator:

  - arena: one buffer sized to the sum of tile lengths, split into disjoint
    per-tile slots at dispatch time. Workers only see their own Slot. The
    coordinator reads slots after the barrier (every worker joined).
  - channel: one single-use buffered channel per worker carrying the whole
    tile. The coordinator receives in creation order, then joins.

Both are driven by the same Coordinator:

	coord := workers.NewCoordinator(workers.NewArenaTransport(), blur, logger).
		WithMetrics(metrics).
		WithAdmitter(lc)
	out, err := coord.Run(ctx, tiles, tiling.NewFilterSelection(0, 1, 2))

The first worker error cancels the others through the shared context and
is returned from Run; no partial result is ever returned.
*/
package workers
