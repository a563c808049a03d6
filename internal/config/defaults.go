package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ericyan/iputil"
)

// Backends supported by omnirenderd.
const (
	BackendMPRIS = "mpris"
	BackendCast  = "gcast"
	BackendNone  = "none"
)

// Default returns a Config populated with the defaults.
func Default() *Config {
	return &Config{
		Name:    "omnirender",
		Host:    defaultHost(),
		Port:    2278,
		Backend: BackendMPRIS,
		MPRIS: MPRISConfig{
			PollInterval: time.Second,
		},
		Cast: CastConfig{
			DiscoveryTimeout: 10 * time.Second,
			PollInterval:     time.Second,
		},
		Renderer: RendererConfig{
			AutoPlay:            false,
			PollInterval:        time.Second,
			EventMinInterval:    200 * time.Millisecond,
			SubscriptionTimeout: 1800 * time.Second,
		},
		Pipeline: PipelineConfig{
			LiveStreamDuration: time.Hour,
			Retry: RetryConfig{
				Attempts:    3,
				BaseBackoff: 500 * time.Millisecond,
				MaxBackoff:  2 * time.Second,
			},
			Cache: CacheConfig{
				Enabled:  false,
				Dir:      filepath.Join(os.TempDir(), "omnirender"),
				MaxBytes: 512 << 20,
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultHost() string {
	if addr, _ := iputil.DefaultIPv4(); addr != nil {
		return addr.IP.String()
	}

	return ""
}
