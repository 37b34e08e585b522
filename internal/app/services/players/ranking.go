package players

import (
	"sort"

	"github.com/R3E-Network/roster/internal/app/domain/player"
)

// Ranked returns a copy of list ordered by strength, strongest first. Equal
// strengths keep their stored order. The input is not modified.
func Ranked(list []player.Player) []player.Player {
	out := clonePlayers(list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out
}

// Standing pairs a record with its 1-based display position.
type Standing struct {
	Position int
	Player   player.Player
}

// Standings ranks list and numbers the result.
func Standings(list []player.Player) []Standing {
	ranked := Ranked(list)
	out := make([]Standing, len(ranked))
	for i, p := range ranked {
		out[i] = Standing{Position: i + 1, Player: p}
	}
	return out
}
