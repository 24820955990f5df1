package config

// Escrow seeds the fee policy and privileged roles on first start.
type Escrow struct {
	FeeBps       uint32 `toml:"FeeBps"`
	MaxFeeBps    uint32 `toml:"MaxFeeBps"`
	FeeCollector string `toml:"FeeCollector"`
	Arbiter      string `toml:"Arbiter"`
}

// Directory selects the property directory collaborator. URL wins over File
// when both are set.
type Directory struct {
	File string `toml:"File"`
	URL  string `toml:"URL"`
}

// RPC controls the JSON-RPC listener.
type RPC struct {
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	JWTIssuer          string  `toml:"JWTIssuer"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	ReadHeaderTimeout  int     `toml:"ReadHeaderTimeout"`
	ShutdownTimeout    int     `toml:"ShutdownTimeout"`
}

// Indexer configures the SQLite event index.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Path    string `toml:"Path"`
}

// Log mirrors logging.Options.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry mirrors the OTLP exporter settings.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}
