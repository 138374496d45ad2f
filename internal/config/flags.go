package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagSource      = flag.String("source", "", "Source data directory")
	flagContent     = flag.String("content", "", "Cooked content directory")
	flagRightHanded = flag.Bool("right-handed", false, "Flip Y and winding for right-handed sources")
	flagWorkers     = flag.Int("workers", 0, "Cook workers used by preload")
	flagForce       = flag.Bool("force", false, "Cook even when artifacts are fresh")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments left after ParseFlags.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagSource != "" {
		cfg.Paths.SourceDir = *flagSource
	}
	if *flagContent != "" {
		cfg.Paths.ContentDir = *flagContent
	}
	if *flagRightHanded {
		cfg.Import.RightHanded = true
	}
	if *flagWorkers > 0 {
		cfg.Preload.Workers = *flagWorkers
	}
	if *flagForce {
		cfg.Import.Force = true
	}
}
