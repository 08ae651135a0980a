package sim

import "fmt"

// Config groups the global parameters of a Simulation. Fields may be changed
// freely until Finalize; they are read through attributes at generation time.
type Config struct {
	DT                          float64 `yaml:"dt"`                              // Euler integration step
	NTimesteps                  int     `yaml:"n_timesteps"`                     // timesteps per run (>= 0)
	NRealizations               int     `yaml:"n_realizations"`                  // independent realizations (> 0)
	NRealizationsPerDivisionMax int     `yaml:"n_realizations_per_division_max"` // resident realizations per division (0 < x <= NRealizations)
	Seed                        int64   `yaml:"seed"`                            // host RNG master seed
	PrintHooks                  bool    `yaml:"print_hooks"`                     // annotate generated source with hook stage comments
}

// DefaultConfig returns the configuration a bare Simulation starts from.
func DefaultConfig() Config {
	return Config{
		DT:                          0.1,
		NTimesteps:                  10000,
		NRealizations:               1,
		NRealizationsPerDivisionMax: 1,
	}
}

// Validate reports the first configuration error, if any. Finalize enforces
// the realization invariants separately so that programmatic trees get the
// same checks.
func (c Config) Validate() error {
	if c.DT <= 0 {
		return fmt.Errorf("dt must be > 0, got %v", c.DT)
	}
	if c.NTimesteps < 0 {
		return fmt.Errorf("n_timesteps must be >= 0, got %d", c.NTimesteps)
	}
	if c.NRealizations <= 0 {
		return fmt.Errorf("n_realizations must be > 0, got %d", c.NRealizations)
	}
	if c.NRealizationsPerDivisionMax <= 0 || c.NRealizationsPerDivisionMax > c.NRealizations {
		return fmt.Errorf("n_realizations_per_division_max must be in (0, %d], got %d",
			c.NRealizations, c.NRealizationsPerDivisionMax)
	}
	return nil
}
