package tick

// Config describes a clock to construct.
type Config struct {
	TickRateMS   int    `yaml:"tick_rate_ms"`
	StartingTick uint64 `yaml:"starting_tick"`
	StartPaused  bool   `yaml:"start_paused"`
}

// Defaults applies default values to the config. A tick rate of zero is
// treated as unset; negative rates are kept and clamped to 1ms by Build.
func (c *Config) Defaults() {
	if c.TickRateMS == 0 {
		c.TickRateMS = DefaultTickRateMS
	}
}

// Build returns the clock the config describes.
func (c Config) Build(opts ...Option) *Clock {
	return FromStartingTick(c.TickRateMS, c.StartingTick, c.StartPaused, opts...)
}
