package store

const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Config holds snapshot store configuration.
type Config struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// Defaults applies default values to the config.
func (c *Config) Defaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.Path == "" {
		switch c.Driver {
		case DriverFile:
			c.Path = "data/clocks"
		default:
			c.Path = "data/metronome.db"
		}
	}
	if c.Format == "" {
		c.Format = "json"
	}
}
