package failover

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"controlplane/topology"
)

// LinkSample is one observation from the switch-session collaborator's
// statistics feed.
type LinkSample struct {
	EdgeA, EdgeB string
	Stats        topology.LinkStats
	Utilization  float64 // Mbps
	TrafficLost  bool
}

// StatsSource is the periodic-pull side of the switch-session collaborator.
type StatsSource interface {
	LinkStats(ctx context.Context) ([]LinkSample, error)
}

// PollStats pulls link statistics on the given interval and feeds them into
// the event queue until ctx is cancelled. The manager's consumer loop does
// the actual health evaluation, keeping mutation serialized.
func (m *Manager) PollStats(ctx context.Context, source StatsSource, interval time.Duration) {
	if source == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samples, err := source.LinkStats(ctx)
			if err != nil {
				log.Warnf("failover: stats pull failed: %v", err)
				continue
			}
			for _, s := range samples {
				m.Enqueue(Event{
					Kind:        EventLinkStats,
					EdgeA:       s.EdgeA,
					EdgeB:       s.EdgeB,
					Stats:       s.Stats,
					Utilization: s.Utilization,
					TrafficLost: s.TrafficLost,
				})
			}
		}
	}
}
