package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:   "info",
			AppVersion: "1.0.0",
		},
		Bridge: BridgeConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8765,
			Path:    "/ws",
		},
		Bus: BusConfig{
			QueueSize:             100,
			EnqueueTimeoutSeconds: 10,
			HistorySize:           1000,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DBPath: "~/.kitmsg/parameters.db",
		},
		Timeline: TimelineConfig{
			StartSeconds: 0,
			EndSeconds:   100,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Prefix:  "kitmsg",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
