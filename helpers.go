package arena

import (
	"fmt"
	"math/rand/v2"
	"unicode/utf8"
)

// MaxPlayerNameBytes bounds the encoded length of a player name in a join request.
const MaxPlayerNameBytes = 125

// TruncatePlayerName shortens name to at most MaxPlayerNameBytes bytes
// without splitting a UTF-8 sequence.
//
// Usage:
//
//	req := arena.JoinRequest{PlayerName: arena.TruncatePlayerName(name)}
func TruncatePlayerName(name string) string {
	if len(name) <= MaxPlayerNameBytes {
		return name
	}
	cut := MaxPlayerNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// BotName decorates name for a thin client, e.g. "[Bot 07] alice".
// The number is drawn from rng in [1, 98].
func BotName(rng *rand.Rand, name string) string {
	return TruncatePlayerName(fmt.Sprintf("[Bot %02d] %s", rng.IntN(98)+1, name))
}
