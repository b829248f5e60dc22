package arena

// joinSystem turns pending join requests into avatars.
//
// A request is accepted only when its source connection is still live,
// recognised by the transport and not yet in game. Accepted requests get an
// avatar ghost and, unless the player spectates, a character spawn request.
// Every request is consumed whether it was accepted or not.
type joinSystem struct {
	m *Manager
}

// Run implements Runnable.
func (s *joinSystem) Run(t Tick) {
	m := s.m
	w := m.world
	cb := m.commands

	requests := Query[PendingJoin](w)
	if len(requests) == 0 {
		return
	}

	// InGame is only added on playback, so a second request from the same
	// connection in this tick has to be caught here.
	seen := make(map[Entity]struct{}, len(requests))

	for _, e := range requests {
		req := Get[PendingJoin](w, e)
		cb.Destroy(e)

		conn := req.Source
		nid := Get[NetworkID](w, conn)
		if nid == nil || Has[InGame](w, conn) {
			m.metrics.JoinsDropped.Add(1)
			m.logger.Debug("arena: dropping join request", "source", conn)
			continue
		}
		if _, dup := seen[conn]; dup {
			m.metrics.JoinsDropped.Add(1)
			continue
		}
		seen[conn] = struct{}{}

		player := cb.Instantiate(m.resources.PlayerGhost)
		cb.AddComponent(player, &GhostOwner{ID: nid.ID})
		cb.AddComponent(player, &Avatar{Name: req.PlayerName, Spectator: req.IsSpectator})
		cb.AppendOwnership(m.ownership, nid.ID, OwnershipEntry{Player: player})
		cb.AppendLinked(conn, player)

		if !req.IsSpectator {
			spawn := cb.Create()
			cb.AddComponent(spawn, &PendingCharacterSpawn{Client: conn, Delay: -1})
		}

		cb.AddComponent(conn, &JoinedClient{Player: player})
		cb.AddComponent(conn, &InGame{})

		m.metrics.JoinsAccepted.Add(1)
		m.events.Record(t.Number, EventPlayerJoined, nid.ID, req.PlayerName)
		m.logger.Info("arena: player joined",
			"connection", nid.ID,
			"player", req.PlayerName,
			"spectator", req.IsSpectator)
	}
}
