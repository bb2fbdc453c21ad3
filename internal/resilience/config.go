package resilience

// Config holds configuration for all resilience primitives.
type Config struct {
	// StateDir is where shared state lives. Empty uses the default cache
	// location.
	StateDir string

	// Shared enables cross-process state (rate-limit exhaustion and the
	// request budget). When false everything stays in memory.
	Shared bool

	// RequestsPerHour caps requests through the local budget. Zero or
	// negative disables the budget.
	RequestsPerHour int

	// MaxInFlight bounds concurrent requests in this process.
	// Default: 10
	MaxInFlight int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Shared:      true,
		MaxInFlight: DefaultMaxInFlight,
	}
}

// WithStateDir returns a copy of the config using dir for shared state.
func (c Config) WithStateDir(dir string) Config {
	c.StateDir = dir
	return c
}

// WithRequestsPerHour returns a copy of the config with the given budget.
func (c Config) WithRequestsPerHour(n int) Config {
	c.RequestsPerHour = n
	return c
}

// WithMaxInFlight returns a copy of the config with the given concurrency limit.
func (c Config) WithMaxInFlight(n int) Config {
	c.MaxInFlight = n
	return c
}

// Guards bundles the primitives the API client consults.
type Guards struct {
	Store    *Store // nil when state is not shared
	Tracker  *Tracker
	Budget   *Budget // nil when disabled
	Bulkhead *Bulkhead
}

// Build constructs the primitives described by c.
func (c Config) Build() *Guards {
	var store *Store
	if c.Shared {
		store = NewStore(c.StateDir)
	}
	return &Guards{
		Store:    store,
		Tracker:  NewTracker(store),
		Budget:   NewBudget(c.RequestsPerHour, store),
		Bulkhead: NewBulkhead(c.MaxInFlight),
	}
}
