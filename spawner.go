package arena

// spawnSystem creates characters for ready spawn requests.
//
// Requests are served in creation order. Each one claims a distinct spawn
// point for the current batch; when the allocator runs out the rest of the
// batch stays queued for a later tick.
type spawnSystem struct {
	m *Manager
}

// Run implements Runnable.
func (s *spawnSystem) Run(t Tick) {
	m := s.m
	w := m.world
	cb := m.commands

	requests := Query[PendingCharacterSpawn](w)
	if len(requests) == 0 {
		return
	}

	points := m.spawnPoints.snapshot()
	consumed := NewBitArray(len(points))

	for _, e := range requests {
		req := Get[PendingCharacterSpawn](w, e)
		if req.Delay > 0 {
			req.Delay -= t.Seconds()
			continue
		}

		// Requests for connections that are not ready stay queued; the
		// disconnect handler removes them if the connection goes away.
		nid := Get[NetworkID](w, req.Client)
		joined := Get[JoinedClient](w, req.Client)
		if nid == nil || joined == nil {
			continue
		}

		idx, ok := m.allocator.Find(points, consumed, m.rng)
		if !ok {
			m.metrics.SpawnsExhausted.Add(1)
			m.logger.Debug("arena: no free spawn point, deferring spawns",
				"points", len(points))
			break
		}
		point := points[idx]

		character := cb.Instantiate(m.resources.CharacterGhost)
		cb.AddComponent(character, &GhostOwner{ID: nid.ID})
		cb.AddComponent(character, &Transform{Position: point.Position, Rotation: point.Rotation})
		cb.AddComponent(character, &OwningPlayer{Player: joined.Player})
		cb.AppendOwnership(m.ownership, nid.ID, OwnershipEntry{Character: character})
		cb.AppendLinked(req.Client, character)
		cb.Destroy(e)

		m.metrics.CharactersSpawned.Add(1)
		m.events.Record(t.Number, EventCharacterSpawned, nid.ID, "")
		m.logger.Debug("arena: character spawned",
			"connection", nid.ID,
			"spawn_point", idx)
	}
}
