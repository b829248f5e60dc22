package arena

import (
	"context"
)

const (
	// replicationGraceTicks is how long a client waits for the first ghost
	// before treating an empty server as fully replicated.
	replicationGraceTicks = 60

	// replicationThreshold is the progress above which replication is done.
	replicationThreshold = 0.99
)

// GhostCounter reports local and server ghost counts.
type GhostCounter interface {
	GhostCount() (instantiated, server int)
}

// ReplicationProgress returns how far ghost replication has converged, in
// [0, 1]. With no server ghosts it reports 1 once more than the grace
// period of ticks has been waited and 0 before that.
func ReplicationProgress(instantiated, server, waitedTicks int) float64 {
	if server > 0 {
		p := float64(instantiated) / float64(server)
		return min(max(p, 0), 1)
	}
	if waitedTicks > replicationGraceTicks {
		return 1
	}
	return 0
}

// WaitForGhostReplication blocks until the client has instantiated the
// ghosts the server reports, checking once per tick.
func WaitForGhostReplication(ctx context.Context, clock Clock, counter GhostCounter) error {
	for waited := 0; ; waited++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		inst, server := counter.GhostCount()
		if ReplicationProgress(inst, server, waited) > replicationThreshold {
			return nil
		}
		if err := clock.WaitTicks(ctx, 1); err != nil {
			return err
		}
	}
}
