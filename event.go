package arena

// EventKind classifies a server lifecycle event.
type EventKind uint8

const (
	EventPlayerJoined EventKind = iota + 1
	EventCharacterSpawned
	EventRespawnQueued
	EventPlayerLeft
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPlayerJoined:
		return "PlayerJoined"
	case EventCharacterSpawned:
		return "CharacterSpawned"
	case EventRespawnQueued:
		return "RespawnQueued"
	case EventPlayerLeft:
		return "PlayerLeft"
	default:
		return "Unknown"
	}
}

// Event is a server lifecycle notification shipped to clients in snapshots.
type Event struct {
	// Seq increases by one per recorded event; clients use it to skip
	// events they already saw in earlier snapshots.
	Seq        uint64       `msgpack:"seq"`
	Tick       uint64       `msgpack:"tick"`
	Kind       EventKind    `msgpack:"kind"`
	Connection ConnectionID `msgpack:"conn"`
	Name       string       `msgpack:"name,omitempty"`
}

// EventLog keeps recent events for a fixed number of ticks so clients that
// miss a snapshot still receive them.
type EventLog struct {
	events []Event
	seq    uint64
	retain uint64
}

// NewEventLog creates a log keeping events for retain ticks.
func NewEventLog(retain uint32) *EventLog {
	return &EventLog{retain: uint64(retain)}
}

// Record appends an event for tick.
func (l *EventLog) Record(tick uint64, kind EventKind, conn ConnectionID, name string) Event {
	l.seq++
	ev := Event{Seq: l.seq, Tick: tick, Kind: kind, Connection: conn, Name: name}
	l.events = append(l.events, ev)
	return ev
}

// Prune drops events recorded more than retain ticks before tick.
func (l *EventLog) Prune(tick uint64) {
	drop := 0
	for drop < len(l.events) && l.events[drop].Tick+l.retain < tick {
		drop++
	}
	if drop == 0 {
		return
	}
	n := copy(l.events, l.events[drop:])
	clear(l.events[n:])
	l.events = l.events[:n]
}

// Recent returns a copy of the retained events, oldest first.
func (l *EventLog) Recent() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
