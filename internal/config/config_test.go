package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Paths.SourceDir != "data" {
		t.Errorf("expected source dir 'data', got %s", cfg.Paths.SourceDir)
	}
	if cfg.Paths.ContentDir != "content" {
		t.Errorf("expected content dir 'content', got %s", cfg.Paths.ContentDir)
	}
	if cfg.Import.RightHanded {
		t.Error("expected right_handed to be false by default")
	}
	if cfg.Import.DefaultMaterial != "DefaultMaterial" {
		t.Errorf("expected default material 'DefaultMaterial', got %s", cfg.Import.DefaultMaterial)
	}
	if cfg.Import.BumpMultiplier != 1.0 {
		t.Errorf("expected bump multiplier 1.0, got %f", cfg.Import.BumpMultiplier)
	}
	if cfg.Preload.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.Preload.Workers)
	}
	if len(cfg.Preload.GeometryPatterns) != 1 || cfg.Preload.GeometryPatterns[0] != "*.obj" {
		t.Errorf("unexpected geometry patterns %v", cfg.Preload.GeometryPatterns)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "meshcook.yaml")

	yamlContent := `
paths:
  source_dir: "assets/src"
  content_dir: "assets/cooked"

import:
  right_handed: true
  default_material: "Fallback"
  bump_multiplier: 0.5

preload:
  workers: 4
  geometry_patterns: ["*.obj", "*.OBJ"]

logging:
  level: "debug"
  log_file: "cook.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Paths.SourceDir != "assets/src" {
		t.Errorf("expected source dir assets/src, got %s", cfg.Paths.SourceDir)
	}
	if cfg.Paths.ContentDir != "assets/cooked" {
		t.Errorf("expected content dir assets/cooked, got %s", cfg.Paths.ContentDir)
	}
	if !cfg.Import.RightHanded {
		t.Error("expected right_handed to be true")
	}
	if cfg.Import.DefaultMaterial != "Fallback" {
		t.Errorf("expected default material Fallback, got %s", cfg.Import.DefaultMaterial)
	}
	if cfg.Import.BumpMultiplier != 0.5 {
		t.Errorf("expected bump multiplier 0.5, got %f", cfg.Import.BumpMultiplier)
	}
	if cfg.Preload.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Preload.Workers)
	}
	if len(cfg.Preload.GeometryPatterns) != 2 {
		t.Errorf("expected 2 geometry patterns, got %v", cfg.Preload.GeometryPatterns)
	}
	// Not present in the file, so the default survives.
	if len(cfg.Preload.ImagePatterns) != 1 {
		t.Errorf("expected default image patterns, got %v", cfg.Preload.ImagePatterns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "cook.log" {
		t.Errorf("expected log file 'cook.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")

	invalidYAML := `
preload:
  workers: not a number
  invalid syntax here
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/meshcook.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	os.Chdir(tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "meshcook.yaml")
	if err := os.WriteFile(configPath, []byte("preload:\n  workers: 2\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find meshcook.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name: "directory flags",
			setup: func() {
				*flagSource = "raw"
				*flagContent = "baked"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Paths.SourceDir != "raw" {
					t.Errorf("expected source dir raw, got %s", cfg.Paths.SourceDir)
				}
				if cfg.Paths.ContentDir != "baked" {
					t.Errorf("expected content dir baked, got %s", cfg.Paths.ContentDir)
				}
			},
			teardown: func() {
				*flagSource = ""
				*flagContent = ""
			},
		},
		{
			name:  "right-handed flag",
			setup: func() { *flagRightHanded = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Import.RightHanded {
					t.Error("expected right_handed to be true with flag")
				}
			},
			teardown: func() { *flagRightHanded = false },
		},
		{
			name: "workers and force flags",
			setup: func() {
				*flagWorkers = 8
				*flagForce = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Preload.Workers != 8 {
					t.Errorf("expected 8 workers, got %d", cfg.Preload.Workers)
				}
				if !cfg.Import.Force {
					t.Error("expected force to be set")
				}
			},
			teardown: func() {
				*flagWorkers = 0
				*flagForce = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "meshcook.yaml")

	yamlContent := `
paths:
  source_dir: "from-file"
  content_dir: "~/cooked"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagSource = "from-flag"
	defer func() {
		*flagConfig = ""
		*flagSource = ""
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Paths.SourceDir != "from-flag" {
		t.Errorf("expected source dir from flag, got %s", cfg.Paths.SourceDir)
	}

	home, err := homedir.Dir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	if want := filepath.Join(home, "cooked"); cfg.Paths.ContentDir != want {
		t.Errorf("expected content dir %s, got %s", want, cfg.Paths.ContentDir)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "meshcook.yaml")

	cfg := Default()
	cfg.Preload.Workers = 3
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}
	if loaded.Preload.Workers != 3 {
		t.Errorf("expected 3 workers after reload, got %d", loaded.Preload.Workers)
	}
}
