package players

import (
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/roster/internal/app/domain/player"
)

// ErrUnknownField is returned by Draft.Set for a name outside the form.
var ErrUnknownField = errors.New("unknown field")

// Draft is the add-player form. Its zero value is the empty form.
type Draft struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Health   float64 `json:"health"`
	Strength float64 `json:"strength"`
}

// Set merges one field edit into the draft by field name. Numeric fields
// never reject input: anything that does not parse becomes 0.
func (d *Draft) Set(field, value string) error {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "name":
		d.Name = value
	case "address":
		d.Address = value
	case "health":
		d.Health = CoerceNumber(value)
	case "strength":
		d.Strength = CoerceNumber(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Fields returns the draft as a full set of record fields.
func (d Draft) Fields() player.Fields {
	return player.Fields{
		Name:     player.String(d.Name),
		Address:  player.String(d.Address),
		Health:   player.Float(d.Health),
		Strength: player.Float(d.Strength),
	}
}

// Submit turns the draft into a create command and clears the form.
func (d *Draft) Submit() Command {
	cmd := Command{Action: ActionCreate, Fields: d.Fields()}
	d.Reset()
	return cmd
}

// Reset restores the empty form.
func (d *Draft) Reset() {
	*d = Draft{}
}

// CoerceNumber parses a form value. Blank, malformed and non-finite input
// yields 0.
func CoerceNumber(raw string) float64 {
	return player.ParseNumber(raw)
}
