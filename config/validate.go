package config

import (
	"fmt"
	"strings"

	"landescrow/native/fees"
)

// MaxFeeCeilingBps is the highest fee cap an operator may configure (10%).
const MaxFeeCeilingBps = fees.DefaultMaxPlatformFeeBps

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLevelDB, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("backend: unknown storage backend %q", c.Backend)
	}
	if c.Escrow.MaxFeeBps > MaxFeeCeilingBps {
		return fmt.Errorf("escrow: max_fee_bps %d exceeds ceiling %d", c.Escrow.MaxFeeBps, MaxFeeCeilingBps)
	}
	if c.Escrow.FeeBps > c.Escrow.MaxFeeBps {
		return fmt.Errorf("escrow: fee_bps %d exceeds max_fee_bps %d", c.Escrow.FeeBps, c.Escrow.MaxFeeBps)
	}
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if _, err := c.EscrowParams(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if url := strings.TrimSpace(c.Directory.URL); url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("directory: url must be http(s), got %q", url)
	}
	return nil
}
