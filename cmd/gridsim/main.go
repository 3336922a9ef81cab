package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/worldgrid/internal/config"
	"github.com/l1jgo/worldgrid/internal/core/event"
	coresys "github.com/l1jgo/worldgrid/internal/core/system"
	"github.com/l1jgo/worldgrid/internal/data"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/pathfind"
	"github.com/l1jgo/worldgrid/internal/persist"
	"github.com/l1jgo/worldgrid/internal/scripting"
	"github.com/l1jgo/worldgrid/internal/system"
	"github.com/l1jgo/worldgrid/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              gridsim  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m   cell grid · occupancy · detection core  \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main simulation logic ─────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/gridsim.toml"
	if p := os.Getenv("WORLDGRID_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the TOML config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner()

	// 3. Scene and scripts
	printSection("Scene")
	scene, err := data.LoadScene(cfg.Simulation.Scene)
	if err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	printStat("Entities", scene.Count())
	printStat("Path queries", len(scene.Paths))

	lua, err := scripting.NewEngine(cfg.Simulation.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer lua.Close()
	printOK("Lua predicates loaded")
	fmt.Println()

	// 4. Grid core
	printSection("Grid")
	ws := world.NewState(world.Options{
		CellSize:      cfg.Grid.CellSize,
		InitialBounds: initialBounds(cfg.Grid),
		RangeCapacity: cfg.Grid.RangeCapacity,
		Vertical:      cfg.Detector.Vertical,
		Pathfind: pathfind.Config{
			ArenaCapacity:   cfg.Pathfind.ArenaCapacity,
			BacktrackBudget: cfg.Pathfind.BacktrackBudget,
			ForwardPenalty:  cfg.Pathfind.ForwardPenalty,
			Vertical:        cfg.Pathfind.Vertical,
		},
	}, log)
	detectors, err := spawnScene(ws, scene, lua)
	if err != nil {
		return fmt.Errorf("spawn scene: %w", err)
	}
	printStat("Staged entities", ws.StagedLen())
	printStat("Detectors", detectors)
	kinds := ws.CountByKind()
	for _, k := range slices.Sorted(maps.Keys(kinds)) {
		printStat("  kind "+k, kinds[k])
	}
	fmt.Println()

	// 5. Journal: Postgres when enabled, the log otherwise
	var journal system.Journal = logJournal{log: log}
	if cfg.Database.Enabled {
		printSection("Database")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		applied, err := persist.RunMigrations(ctx, db)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printStat("Migrations applied", len(applied))

		repo := persist.NewJournalRepo(db)
		runID, err := repo.StartRun(ctx, cfg.Simulation.Scene, cfg.Grid.CellSize)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		printStat("Run", int(runID))
		journal = repo
		fmt.Println()
	}

	// 6. Create systems and register with runner
	runner := coresys.NewRunner()
	occSys := system.NewOccupancySystem(ws, cfg.Simulation.Workers, log)
	pathSys := system.NewPathQuerySystem(ws, log)
	journalSys := system.NewJournalSystem(ws.Bus, journal, log, cfg.Database.FlushInterval)
	runner.Register(system.NewEventDispatchSystem(ws.Bus))
	runner.Register(system.NewMotionSystem(ws))
	runner.Register(occSys)
	runner.Register(system.NewDetectionSystem(ws, occSys, cfg.Simulation.Workers, log))
	runner.Register(pathSys)
	runner.Register(journalSys)
	cleanupSys := system.NewCleanupSystem(ws.ECS)
	runner.Register(cleanupSys)

	event.Subscribe(ws.Bus, func(ev event.Detected) {
		verb := "lost"
		if ev.Detected {
			verb = "detected"
		}
		log.Info("detection",
			zap.String("observer", ws.NameOf(ev.Observer)),
			zap.String(verb, ws.NameOf(ev.Target)))
	})
	queuePaths(ws, scene, pathSys)

	// 7. Start simulation loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	printSection("Running")
	printReady(fmt.Sprintf("Simulation loop started (tick: %s)", cfg.Simulation.TickRate))
	fmt.Println()

	ticks := 0
	for {
		select {
		case <-ticker.C:
			took := runner.Tick(cfg.Simulation.TickRate)
			ticks++
			if took > cfg.Simulation.TickRate {
				warnSlowTick(runner, took, log)
			}
			reportPaths(ws, pathSys.Results(), log)
			if cfg.Simulation.MaxTicks > 0 && ticks >= cfg.Simulation.MaxTicks {
				shutdown(ws, journalSys, cleanupSys, log, ticks)
				return nil
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			shutdown(ws, journalSys, cleanupSys, log, ticks)
			return nil
		}
	}
}

func shutdown(ws *world.State, journalSys *system.JournalSystem, cleanupSys *system.CleanupSystem, log *zap.Logger, ticks int) {
	// Deliver the last tick's events before the final flush.
	ws.Bus.SwapBuffers()
	ws.Bus.DispatchAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	journalSys.Flush(ctx)

	if err := errors.Join(ws.Index.Verify(), ws.Detectors.Verify()); err != nil {
		log.Error("grid core inconsistent at shutdown", zap.Error(err))
	}
	log.Info("simulation stopped",
		zap.Int("ticks", ticks),
		zap.Int("live_entities", ws.ECS.Pool().Live()),
		zap.Int("destroyed", cleanupSys.Destroyed()),
		zap.Int("indexed", ws.Index.Len()),
		zap.Int("occupied_cells", ws.Index.OccupiedCells()),
		zap.Int16("grid_checksum", ws.Index.Grid().Checksum),
		zap.Any("components", ws.ECS.Registry().Sizes()))
}

func warnSlowTick(runner *coresys.Runner, took time.Duration, log *zap.Logger) {
	fields := []zap.Field{zap.Duration("took", took)}
	for phase, d := range runner.LastTick() {
		fields = append(fields, zap.Duration(phase.String(), d))
	}
	log.Warn("tick overran its budget", fields...)
}

func reportPaths(ws *world.State, results []system.PathResult, log *zap.Logger) {
	g := ws.Index.Grid()
	for _, r := range results {
		if !r.Found {
			log.Warn("no path", zap.String("query", r.Query.Name))
			continue
		}
		points := make([]string, len(r.Path.Waypoints))
		for i, c := range r.Path.Waypoints {
			points[i] = g.PositionOf(c.Location()).String()
		}
		log.Info("path",
			zap.String("query", r.Query.Name),
			zap.Int("cells", r.Path.Len()),
			zap.Strings("waypoints", points))
	}
}

func initialBounds(cfg config.GridConfig) *grid.AABB {
	if cfg.InitialMin == nil || cfg.InitialMax == nil {
		return nil
	}
	return &grid.AABB{Min: data.Vec(*cfg.InitialMin), Max: data.Vec(*cfg.InitialMax)}
}

// logJournal writes journal entries to the debug log when no database is
// configured.
type logJournal struct {
	log *zap.Logger
}

func (j logJournal) WriteLocations(_ context.Context, entries []persist.LocationEntry) error {
	for _, e := range entries {
		j.log.Debug("location",
			zap.Int64("tick", e.Tick), zap.Uint64("entity", e.Entity),
			zap.Int("cells", len(e.Cells)), zap.Bool("reindex", e.IsReindex))
	}
	return nil
}

func (j logJournal) WriteDetections(_ context.Context, entries []persist.DetectionEntry) error {
	for _, e := range entries {
		j.log.Debug("detection change",
			zap.Int64("tick", e.Tick), zap.Uint64("observer", e.Observer),
			zap.Uint64("target", e.Target), zap.Bool("detected", e.Detected))
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
