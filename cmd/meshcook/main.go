// meshcook cooks OBJ/MTL source assets into binary mesh and material blobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/Faultbox/meshcook/internal/assets"
	"github.com/Faultbox/meshcook/internal/cache"
	"github.com/Faultbox/meshcook/internal/config"
	"github.com/Faultbox/meshcook/internal/logger"
	"github.com/Faultbox/meshcook/internal/mesh"
	"github.com/Faultbox/meshcook/internal/preload"
	"github.com/Faultbox/meshcook/internal/texture"
	"github.com/Faultbox/meshcook/pkg/formats"
)

var errUsage = errors.New("invalid usage")

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}

	logger.Sugar.Debugf("Config: %+v", cfg)

	command := args[0]
	args = args[1:]

	switch command {
	case "cook":
		err = cmdCook(cfg, args)
	case "check":
		err = cmdCheck(cfg, args)
	case "info":
		err = cmdInfo(cfg, args)
	case "preload":
		err = cmdPreload(cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		err = errUsage
	}

	logger.Sync()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshcook - OBJ/MTL asset cooker

Usage:
  meshcook [flags] <command> [args]

Commands:
  cook <file.obj>...     Cook geometry files whose blobs are stale
  check <file.obj>...    Report whether cooked blobs are stale
  info <file.cmesh>      Show the contents of a cooked mesh
  preload                Cook the source tree and load every mesh

Flags:
  -config <path>         Config file (default ./meshcook.yaml)
  -source <dir>          Source data directory
  -content <dir>         Cooked content directory
  -right-handed          Flip Y and winding for right-handed sources
  -workers <n>           Cook workers used by preload
  -force                 Cook even when blobs are fresh
  -debug                 Enable debug logging

Examples:
  meshcook cook data/props/crate.obj
  meshcook -force -workers 4 preload
  meshcook info content/props/crate.cmesh`)
}

func newManager(cfg *config.Config) *cache.Manager {
	return cache.NewManager(cache.Options{
		SourceRoot:            cfg.Paths.SourceDir,
		ContentRoot:           cfg.Paths.ContentDir,
		RightHanded:           cfg.Import.RightHanded,
		DefaultMaterial:       cfg.Import.DefaultMaterial,
		DefaultBumpMultiplier: cfg.Import.BumpMultiplier,
	})
}

func cmdCook(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshcook cook <file.obj>...")
		return errUsage
	}

	mgr := newManager(cfg)
	failed := 0
	for _, source := range args {
		cook := mgr.Cook
		if cfg.Import.Force {
			cook = mgr.CookForce
		}

		res, err := cook(source)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "FAIL   %s: %v\n", source, err)
		case res.Skipped:
			fmt.Printf("fresh  %s\n", source)
		default:
			fmt.Printf("cooked %s -> %s (%d vertices, %d triangles, %d groups, %s)\n",
				source, res.Artifacts.Mesh, res.Vertices, res.Triangles, res.Groups,
				datasize.ByteSize(res.Bytes).HumanReadable())
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func cmdCheck(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshcook check <file.obj>...")
		return errUsage
	}

	mgr := newManager(cfg)
	stale := 0
	for _, source := range args {
		a := mgr.ArtifactsFor(source)
		if mgr.IsStale(source, a) {
			stale++
			fmt.Printf("stale  %s\n", source)
			continue
		}
		fmt.Printf("fresh  %s -> %s\n", source, a.Mesh)
	}
	fmt.Printf("\n%d of %d stale\n", stale, len(args))
	return nil
}

func cmdInfo(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshcook info <file.cmesh>")
		return errUsage
	}

	m, err := newManager(cfg).Obtain(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Mesh:      %s\n", args[0])
	fmt.Printf("Source:    %s\n", m.Source)
	fmt.Printf("Vertices:  %d\n", len(m.Vertices))
	fmt.Printf("Triangles: %d\n", m.TriangleCount())
	fmt.Printf("Bounds:    %v - %v\n", m.Bounds.Min, m.Bounds.Max)
	fmt.Printf("Materials: %d (from material file: %v)\n", len(m.Materials), m.HasMaterials)
	fmt.Println()

	fmt.Println("Groups:")
	for i, g := range m.Groups {
		fmt.Printf("  [%d] %-24s start=%d count=%d\n", i, g.Material, g.StartIndex, g.IndexCount)
	}

	fmt.Println()
	fmt.Println("Materials:")
	for _, mat := range m.Materials {
		fmt.Printf("  %s  Kd=%v  d=%.2f  Ns=%.1f  bm=%.2f\n",
			mat.Name, mat.Diffuse, 1-mat.Transparency, mat.SpecularExponent, mat.BumpMultiplier)
		for slot := formats.TextureSlot(0); slot < formats.TextureSlotCount; slot++ {
			if tex := mat.Texture(slot); tex != "" {
				fmt.Printf("    %-8s %s\n", slot, tex)
			}
		}
	}
	return nil
}

func cmdPreload(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mgr := newManager(cfg)
	textures := texture.NewLoader()
	registry := assets.NewRegistry(mgr,
		assets.WithRoots(cfg.Paths.SourceDir, cfg.Paths.ContentDir),
		assets.WithReleaseHook(func(key string, _ *mesh.Mesh) {
			logger.Debug("mesh released", zap.String("key", key))
		}))
	defer registry.Clear()

	summary, err := preload.Run(ctx, mgr, textures, registry, preload.Options{
		SourceDir:        cfg.Paths.SourceDir,
		ContentDir:       cfg.Paths.ContentDir,
		GeometryPatterns: cfg.Preload.GeometryPatterns,
		ImagePatterns:    cfg.Preload.ImagePatterns,
		MeshExt:          mgr.Options().MeshExt,
		Workers:          cfg.Preload.Workers,
		Force:            cfg.Import.Force,
	})
	if err != nil {
		return err
	}

	for _, r := range summary.Failures() {
		fmt.Fprintf(os.Stderr, "FAIL   %-8s %s: %s\n", r.Kind, r.Path, r.Error)
	}

	hits, misses := registry.Stats()
	fmt.Printf("Cooked:     %d (%s)\n", summary.Cooked, datasize.ByteSize(summary.Bytes).HumanReadable())
	fmt.Printf("Fresh:      %d\n", summary.Skipped)
	fmt.Printf("Textures:   %d\n", summary.Images)
	fmt.Printf("Registered: %d (hits %d, misses %d)\n", summary.Registered, hits, misses)
	fmt.Printf("Failed:     %d\n", summary.Failed)
	fmt.Printf("Elapsed:    %s\n", summary.Elapsed)

	if summary.Failed > 0 {
		return fmt.Errorf("%d files failed", summary.Failed)
	}
	return nil
}
