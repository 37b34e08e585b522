package wallet

// Status mirrors the panel's loading indicator.
type Status string

const (
	StatusPageNotLoaded Status = "pageNotLoaded"
	StatusIdle          Status = "idle"
	StatusLoading       Status = "loading"
)

// Snapshot is the persisted connection. Nil means "not connected".
type Snapshot struct {
	Wallet  *string `json:"wallet"`
	Balance *string `json:"balance"`
}

// Connected reports whether the snapshot names a wallet.
func (s Snapshot) Connected() bool {
	return s.Wallet != nil && *s.Wallet != ""
}

// State is what the panel renders.
type State struct {
	Wallet              *string `json:"wallet"`
	Balance             *string `json:"balance"`
	IsMetamaskInstalled bool    `json:"isMetamaskInstalled"`
	Status              Status  `json:"status"`
}

// PageLoaded is announced once the snapshot has been read.
type PageLoaded struct {
	IsMetamaskInstalled bool    `json:"isMetamaskInstalled"`
	Wallet              *string `json:"wallet"`
	Balance             *string `json:"balance"`
	// Listening is true when a snapshot existed and account changes are
	// being followed.
	Listening bool `json:"listening"`
}
