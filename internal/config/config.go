// Package config handles cooker configuration loading and management.
package config

// Config holds all cooker settings.
type Config struct {
	Paths   PathsConfig   `yaml:"paths"`
	Import  ImportConfig  `yaml:"import"`
	Preload PreloadConfig `yaml:"preload"`
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig holds the source and cooked-content directory roots.
type PathsConfig struct {
	SourceDir  string `yaml:"source_dir"`  // Authored .obj/.mtl/image tree
	ContentDir string `yaml:"content_dir"` // Cooked blob tree
}

// ImportConfig holds geometry import settings.
type ImportConfig struct {
	RightHanded     bool    `yaml:"right_handed"`
	DefaultMaterial string  `yaml:"default_material"`
	BumpMultiplier  float32 `yaml:"bump_multiplier"` // Fallback for malformed -bm options
	Force           bool    `yaml:"-"`
}

// PreloadConfig holds directory preload settings.
type PreloadConfig struct {
	Workers          int      `yaml:"workers"`
	GeometryPatterns []string `yaml:"geometry_patterns"`
	ImagePatterns    []string `yaml:"image_patterns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			SourceDir:  "data",
			ContentDir: "content",
		},
		Import: ImportConfig{
			RightHanded:     false,
			DefaultMaterial: "DefaultMaterial",
			BumpMultiplier:  1.0,
		},
		Preload: PreloadConfig{
			Workers:          1,
			GeometryPatterns: []string{"*.obj"},
			ImagePatterns:    []string{"*.{png,jpg,jpeg,tga,bmp}"},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
