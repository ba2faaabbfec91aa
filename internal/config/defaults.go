package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			HotMaxBytes:        ByteSize(512 * 1024 * 1024),
			WarmMaxBytes:       ByteSize(2 * 1024 * 1024 * 1024),
			CompressedMaxBytes: ByteSize(6 * 1024 * 1024 * 1024),
			WarmPromoteHits:    3,
			ColdPromoteHits:    2,
		},
		Memory: MemoryConfig{
			Budget:              ByteSize(8 * 1024 * 1024 * 1024),
			DefaultSizeEstimate: ByteSize(1024),
		},
		FileCache: FileCacheConfig{
			Backend:      "disk",
			OpenTimeout:  Duration(5 * time.Second),
			WriteThrough: true,
		},
		Translator: TranslatorConfig{
			PointerBase:    0x10000000,
			PointerStride:  0x1000,
			DescriptorBase: 1000,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Listen:  ":9090",
				Path:    "/metrics",
			},
			Health: HealthConfig{
				Enabled:       true,
				Listen:        ":8081",
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
	}
}
