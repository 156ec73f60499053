package main

import (
	"context"
	"database/sql"
	"emojimosaic/internal/cachestore"
	"emojimosaic/internal/config"
	"emojimosaic/internal/db"
	"emojimosaic/internal/logging"
	"emojimosaic/internal/mosaic"
	"emojimosaic/internal/palette"
	"emojimosaic/internal/render"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"strings"
)

const appSlug = "emoji-mosaic"

var systemEmojiFonts = []string{
	"/usr/share/fonts/truetype/noto/NotoColorEmoji.ttf",
	"/usr/share/fonts/noto/NotoColorEmoji.ttf",
	"/usr/share/fonts/google-noto-emoji/NotoColorEmoji.ttf",
	"/System/Library/Fonts/Apple Color Emoji.ttc",
	`C:\Windows\Fonts\seguiemj.ttf`,
}

type bootstrapOptions struct {
	ConfigPath string
	LogLevel   string
	NoCache    bool
}

// App holds the wired domains for one CLI invocation.
type App struct {
	Config   config.Config
	Paths    config.Paths
	Logger   *slog.Logger
	DB       *sql.DB
	Renderer render.Renderer
	Registry *palette.Registry
	Cache    *palette.Cache
	Mosaics  *mosaic.Service

	closers []io.Closer
}

func bootstrap(ctx context.Context, options bootstrapOptions) (*App, error) {
	paths, err := config.ResolvePaths(appSlug)
	if err != nil {
		return nil, err
	}

	configPath := paths.ConfigPath
	var cfg config.Config
	if strings.TrimSpace(options.ConfigPath) != "" {
		configPath = options.ConfigPath
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, err
	}
	if options.LogLevel != "" {
		cfg.Log.Level = options.LogLevel
	}
	if options.NoCache {
		cfg.Cache.Disabled = true
	}

	logger, err := logging.New(os.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", "path", configPath)

	app := &App{Config: cfg, Paths: paths, Logger: logger}

	store, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	renderer, err := app.buildRenderer()
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Renderer = renderer

	registry, err := palette.NewRegistry(cfg.Palettes...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Registry = registry

	profiler := palette.NewProfiler(renderer, cfg.SampleSize, logger.With("component", "profiler"))
	app.Cache = palette.NewCache(store, profiler, registry, logger.With("component", "palette-cache"))
	app.Mosaics = mosaic.NewService(
		app.Cache,
		mosaic.NewAssembler(renderer, logger.With("component", "assembler")),
		logger.With("component", "mosaic"),
	)

	return app, nil
}

func (a *App) openStore(ctx context.Context) (cachestore.Store, error) {
	if a.Config.Cache.Disabled {
		a.Logger.Debug("persistent palette cache disabled")
		return cachestore.NewMemory(), nil
	}

	dbPath := a.Paths.DBPath
	if strings.TrimSpace(a.Config.Cache.Path) != "" {
		dbPath = a.Config.Cache.Path
	}

	database, err := db.Bootstrap(ctx, dbPath)
	if err != nil {
		a.Logger.Warn("palette cache unavailable, profiles will be recomputed", "path", dbPath, "error", err)
		return cachestore.NewMemory(), nil
	}
	a.DB = database
	a.closers = append(a.closers, database)

	store, err := cachestore.NewSQLite(database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)
	return store, nil
}

func (a *App) buildRenderer() (render.Renderer, error) {
	cfg := a.Config.Renderer

	ink := color.Color(color.White)
	if cfg.Ink != "" {
		parsed, err := config.ParseHexColor(cfg.Ink)
		if err != nil {
			return nil, err
		}
		ink = parsed
	}

	switch cfg.Kind {
	case config.RendererSprites:
		return render.NewSpriteRenderer(cfg.Sprites)
	case config.RendererFont:
		return a.openFont(cfg.Font, ink)
	case config.RendererSwatches:
		return a.swatches()
	}

	if cfg.Sprites != "" {
		return render.NewSpriteRenderer(cfg.Sprites)
	}
	candidates := systemEmojiFonts
	if cfg.Font != "" {
		candidates = append([]string{cfg.Font}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		renderer, err := a.openFont(path, ink)
		if err != nil {
			a.Logger.Debug("emoji font rejected", "path", path, "error", err)
			continue
		}
		return renderer, nil
	}

	a.Logger.Warn("no emoji font found, drawing color swatches instead")
	return a.swatches()
}

func (a *App) openFont(path string, ink color.Color) (render.Renderer, error) {
	renderer, err := render.NewFontRenderer(path, ink)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, renderer)
	a.Logger.Debug("using emoji font", "path", path, "name", renderer.Name())
	return renderer, nil
}

func (a *App) swatches() (render.Renderer, error) {
	colors := make(map[string]color.NRGBA, len(a.Config.Renderer.Swatches))
	for glyph, value := range a.Config.Renderer.Swatches {
		parsed, err := config.ParseHexColor(value)
		if err != nil {
			return nil, fmt.Errorf("swatch %q: %w", glyph, err)
		}
		colors[glyph] = parsed
	}
	return render.NewSwatches(colors), nil
}

func (a *App) Background() color.Color {
	if a.Config.Background == "" {
		return nil
	}
	parsed, err := config.ParseHexColor(a.Config.Background)
	if err != nil {
		return nil
	}
	return parsed
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for index := len(a.closers) - 1; index >= 0; index-- {
		if err := a.closers[index].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
