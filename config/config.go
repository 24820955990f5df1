package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"landescrow/native/escrow"
)

// Storage backends understood by the daemon.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

const (
	defaultListenAddress = "127.0.0.1:8547"
	defaultDataDir       = "./escrow-data"
)

// Defaults for the rpc section, shared with the CLI token command.
const (
	DefaultJWTSecretEnv = "LANDESCROW_JWT_SECRET"
	DefaultJWTIssuer    = "landescrow"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Backend       string `toml:"Backend"`
	AllowMigrate  bool   `toml:"AllowMigrate"`
	Environment   string `toml:"Environment"`
	Owner         string `toml:"Owner"`

	Escrow    Escrow    `toml:"escrow"`
	Directory Directory `toml:"directory"`
	RPC       RPC       `toml:"rpc"`
	Indexer   Indexer   `toml:"indexer"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written by createDefault.
func Default() *Config {
	params := escrow.DefaultParams()
	cfg := &Config{
		ListenAddress: defaultListenAddress,
		DataDir:       defaultDataDir,
		Backend:       BackendLevelDB,
		Environment:   "local",
		Escrow: Escrow{
			FeeBps:    params.FeeBps,
			MaxFeeBps: params.MaxFeeBps,
		},
		RPC: RPC{
			JWTSecretEnv:       DefaultJWTSecretEnv,
			JWTIssuer:          DefaultJWTIssuer,
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			ReadHeaderTimeout:  5,
			ShutdownTimeout:    10,
		},
		Indexer: Indexer{Enabled: true},
		Log:     Log{Level: "info"},
	}
	return cfg
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = def.ListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Escrow.MaxFeeBps == 0 {
		c.Escrow.MaxFeeBps = def.Escrow.MaxFeeBps
	}
	if strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		c.RPC.JWTSecretEnv = def.RPC.JWTSecretEnv
	}
	if strings.TrimSpace(c.RPC.JWTIssuer) == "" {
		c.RPC.JWTIssuer = def.RPC.JWTIssuer
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = def.RPC.RateLimitPerSecond
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = def.RPC.RateLimitBurst
	}
	if c.RPC.ReadHeaderTimeout == 0 {
		c.RPC.ReadHeaderTimeout = def.RPC.ReadHeaderTimeout
	}
	if c.RPC.ShutdownTimeout == 0 {
		c.RPC.ShutdownTimeout = def.RPC.ShutdownTimeout
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = def.Log.Level
	}
}

// StorePath returns the on-disk location of the ledger for the configured
// backend.
func (c *Config) StorePath() string {
	if c.Backend == BackendBolt {
		return filepath.Join(c.DataDir, "ledger.bolt")
	}
	return filepath.Join(c.DataDir, "ledger")
}

// IndexerPath returns the SQLite file backing the event index.
func (c *Config) IndexerPath() string {
	if path := strings.TrimSpace(c.Indexer.Path); path != "" {
		return path
	}
	return filepath.Join(c.DataDir, "events.db")
}

// OwnerAddress parses the configured owner. An empty owner yields the zero
// address, which disables admin operations.
func (c *Config) OwnerAddress() ([20]byte, error) {
	return parseAddress("Owner", c.Owner)
}

// EscrowParams converts the escrow section into engine parameters.
func (c *Config) EscrowParams() (escrow.Params, error) {
	collector, err := parseAddress("escrow.FeeCollector", c.Escrow.FeeCollector)
	if err != nil {
		return escrow.Params{}, err
	}
	arbiter, err := parseAddress("escrow.Arbiter", c.Escrow.Arbiter)
	if err != nil {
		return escrow.Params{}, err
	}
	return escrow.Params{
		FeeBps:       c.Escrow.FeeBps,
		MaxFeeBps:    c.Escrow.MaxFeeBps,
		FeeCollector: collector,
		Arbiter:      arbiter,
	}, nil
}

// JWTSecret reads the signing key from the environment variable named in the
// rpc section.
func (c *Config) JWTSecret() ([]byte, error) {
	name := strings.TrimSpace(c.RPC.JWTSecretEnv)
	secret := strings.TrimSpace(os.Getenv(name))
	if secret == "" {
		return nil, fmt.Errorf("environment variable %s is empty", name)
	}
	return []byte(secret), nil
}

func parseAddress(field, raw string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, nil
	}
	if !common.IsHexAddress(trimmed) {
		return out, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
