package player

// Player is one roster record. Field names match the stored JSON document.
type Player struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Health   float64 `json:"health"`
	Strength float64 `json:"strength"`
	// Rank is the creation ordinal. It is never recomputed.
	Rank *int `json:"rank,omitempty"`
}

// Fields carries a partial record. Nil fields are left untouched by Apply.
type Fields struct {
	Name     *string  `json:"name,omitempty"`
	Address  *string  `json:"address,omitempty"`
	Health   *float64 `json:"health,omitempty"`
	Strength *float64 `json:"strength,omitempty"`
	Rank     *int     `json:"rank,omitempty"`
}

// Apply shallow-merges the non-nil fields into p and returns the result.
func (f Fields) Apply(p Player) Player {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Address != nil {
		p.Address = *f.Address
	}
	if f.Health != nil {
		p.Health = *f.Health
	}
	if f.Strength != nil {
		p.Strength = *f.Strength
	}
	if f.Rank != nil {
		rank := *f.Rank
		p.Rank = &rank
	}
	return p
}

// Clone returns a deep copy.
func (p Player) Clone() Player {
	if p.Rank != nil {
		rank := *p.Rank
		p.Rank = &rank
	}
	return p
}

// Defaults is the record set written when storage holds no usable roster.
func Defaults() []Player {
	return []Player{
		{ID: "1", Name: "Lê Minh Phú", Address: "0xb16E68F8d0C735f97baE59F4Fc6548F00f3f8a71", Health: 100, Strength: 79, Rank: intPtr(1)},
		{ID: "2", Name: "Hồ Đức Quyến", Address: "0x2dF17Fc0F4090b58Db66EaD328d1B002FA6af452", Health: 100, Strength: 80, Rank: intPtr(2)},
		{ID: "3", Name: "Ngô Văn Nhớ", Address: "0xe7038f51a90", Health: 65, Strength: 55, Rank: intPtr(3)},
	}
}

func intPtr(v int) *int { return &v }

// String, Float and Int return pointers for building Fields literals.
func String(v string) *string { return &v }

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
