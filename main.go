package main

import (
	"context"
	"emojimosaic/internal/artifact"
	"emojimosaic/internal/config"
	"emojimosaic/internal/logging"
	"emojimosaic/internal/palette"
	"emojimosaic/internal/scanner"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

const usage = `usage: emoji-mosaic [global flags] <command> [flags]

commands:
  render <image>   render one image into an emoji mosaic
  palettes         list palettes and their cache state
  profile <id>     print the color profile of every glyph in a palette
  cache clear      drop persisted palette profiles
  scan             render every new image in the inbox once
  watch            render inbox images as they arrive

global flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	global := flag.NewFlagSet("emoji-mosaic", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "config file (default: XDG config home)")
	logLevel := global.String("log-level", "", "log level: debug, info, warn, error")
	verbose := global.Bool("v", false, "shorthand for -log-level debug")
	noCache := global.Bool("no-cache", false, "keep palette profiles in memory only")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	command, rest := global.Arg(0), global.Args()[1:]
	switch command {
	case "render", "palettes", "profile", "cache", "scan", "watch":
	default:
		fmt.Fprintf(stderr, "emoji-mosaic: unknown command %q\n", command)
		global.Usage()
		return 2
	}
	if *verbose && *logLevel == "" {
		*logLevel = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, bootstrapOptions{ConfigPath: *configPath, LogLevel: *logLevel, NoCache: *noCache})
	if err != nil {
		fmt.Fprintf(stderr, "emoji-mosaic: %v\n", err)
		return 1
	}
	defer app.Close()

	switch command {
	case "render":
		err = runRender(ctx, app, rest, stdout, stderr)
	case "palettes":
		err = runPalettes(ctx, app, stdout)
	case "profile":
		err = runProfile(ctx, app, rest, stdout)
	case "cache":
		err = runCache(ctx, app, rest, stdout, stderr)
	case "scan", "watch":
		err = runScanner(ctx, app, command, rest, stdout, stderr)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp), errors.Is(err, errUsage):
		return 2
	default:
		app.Logger.Error("command failed", "command", command, "error", err)
		return 1
	}
}

var errUsage = errors.New("usage")

func runRender(ctx context.Context, app *App, args []string, stdout io.Writer, stderr io.Writer) error {
	flags := flag.NewFlagSet("render", flag.ContinueOnError)
	flags.SetOutput(stderr)
	paletteID := flags.String("palette", app.Config.Palette, "palette id")
	density := flags.Int("density", app.Config.Density, "detail level 10-50")
	output := flags.String("o", "", "output file or directory")
	format := flags.String("format", "", "png (lossless) or avif (lossy, smaller) (default: from -o, else config)")
	background := flags.String("background", app.Config.Background, "background color, e.g. #101010")
	quiet := flags.Bool("q", false, "suppress progress output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: emoji-mosaic render [flags] <image>")
		return errUsage
	}

	bg, err := parseBackground(*background)
	if err != nil {
		return err
	}
	if *format == "" && *output == "" {
		*format = app.Config.Format
	}

	request := RenderRequest{
		SourcePath: flags.Arg(0),
		OutputPath: *output,
		PaletteID:  *paletteID,
		Density:    *density,
		Format:     *format,
		Background: bg,
	}
	showProgress := !*quiet && logging.IsTerminal(stderr)
	if showProgress {
		request.OnProgress = func(percent int) {
			fmt.Fprintf(stderr, "\rmatching blocks %3d%%", percent)
		}
	}

	summary, err := NewMosaicService(app.Mosaics).RenderFile(ctx, request)
	if showProgress {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s  %dx%d  %s tiles (%d glyphs, block %dpx)  %s  %s\n",
		summary.OutputPath,
		summary.Width,
		summary.Height,
		humanize.Comma(int64(summary.Tiles)),
		summary.Distinct,
		summary.BlockSize,
		humanize.Bytes(uint64(summary.Bytes)),
		summary.Elapsed.Round(time.Millisecond),
	)
	if !summary.Lossless {
		app.Logger.Info("mosaic saved with lossy compression", "path", summary.OutputPath)
	}
	return nil
}

func runPalettes(ctx context.Context, app *App, stdout io.Writer) error {
	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tLABEL\tGLYPHS\tCACHED")
	for _, summary := range NewPaletteService(app.Cache).ListPalettes(ctx) {
		cached := "no"
		if summary.Cached {
			cached = "yes"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", summary.ID, summary.Label, summary.Glyphs, cached)
	}
	return writer.Flush()
}

func runProfile(ctx context.Context, app *App, args []string, stdout io.Writer) error {
	paletteID := app.Config.Palette
	if len(args) > 0 {
		paletteID = args[0]
	}

	profiles, err := NewPaletteService(app.Cache).Profiles(ctx, paletteID)
	if err != nil {
		return err
	}
	return writeProfiles(stdout, profiles)
}

func writeProfiles(w io.Writer, profiles []palette.Profile) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "GLYPH\tL\tC\tH\tRGB")
	for _, profile := range profiles {
		fmt.Fprintf(writer, "%s\t%.4f\t%.4f\t%.1f\t#%02x%02x%02x\n",
			profile.Glyph,
			profile.OKLCH.L,
			profile.OKLCH.C,
			profile.OKLCH.H,
			profile.RGB[0],
			profile.RGB[1],
			profile.RGB[2],
		)
	}
	return writer.Flush()
}

func runCache(ctx context.Context, app *App, args []string, stdout io.Writer, stderr io.Writer) error {
	if len(args) == 0 || args[0] != "clear" {
		fmt.Fprintln(stderr, "usage: emoji-mosaic cache clear [-palette id]")
		return errUsage
	}

	flags := flag.NewFlagSet("cache clear", flag.ContinueOnError)
	flags.SetOutput(stderr)
	paletteID := flags.String("palette", "", "palette to clear (default: all)")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	if err := NewPaletteService(app.Cache).ClearCache(ctx, *paletteID); err != nil {
		return err
	}
	if *paletteID == "" {
		fmt.Fprintln(stdout, "cleared all palette caches")
	} else {
		fmt.Fprintf(stdout, "cleared palette cache %s\n", strings.ToLower(strings.TrimSpace(*paletteID)))
	}
	return nil
}

func runScanner(ctx context.Context, app *App, command string, args []string, stdout io.Writer, stderr io.Writer) error {
	inboxDefault := app.Config.Watch.Inbox
	if inboxDefault == "" {
		inboxDefault = app.Paths.InboxDir
	}
	outputDefault := app.Config.Watch.Output
	if outputDefault == "" && app.Config.Watch.Inbox == "" {
		outputDefault = app.Paths.OutputDir
	}

	flags := flag.NewFlagSet(command, flag.ContinueOnError)
	flags.SetOutput(stderr)
	inbox := flags.String("inbox", inboxDefault, "folder to read images from")
	output := flags.String("output", outputDefault, "folder to write mosaics to (default: inbox)")
	paletteID := flags.String("palette", app.Config.Palette, "palette id")
	density := flags.Int("density", app.Config.Density, "detail level 10-50")
	format := flags.String("format", app.Config.Format, "png (lossless) or avif (lossy, smaller)")
	debounce := flags.Duration("debounce", app.Config.Watch.Debounce, "quiet period before rendering new files")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if _, ok := app.Registry.Lookup(*paletteID); !ok {
		return fmt.Errorf("%w: %q", palette.ErrUnknownPalette, *paletteID)
	}
	if err := os.MkdirAll(*inbox, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	service := scanner.NewService(app.DB, app.Mosaics, scanner.Options{
		InboxDir:   *inbox,
		OutputDir:  *output,
		PaletteID:  *paletteID,
		Density:    *density,
		Format:     artifact.NormalizeFormat(*format),
		Background: app.Background(),
		Debounce:   *debounce,
	}, app.Logger.With("component", "scanner"))
	service.SetEmitter(func(eventName string, payload any) {
		if progress, ok := payload.(scanner.Progress); ok {
			app.Logger.Debug(progress.Message, "event", eventName, "phase", progress.Phase, "percent", progress.Percent)
		}
	})
	facade := NewScannerService(service)

	if command == "scan" {
		totals, err := facade.ScanOnce(ctx)
		if err != nil {
			return err
		}
		tracked, err := facade.Tracked(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d seen, %d rendered, %d skipped, %d failed, %s tracked\n",
			totals.FilesSeen, totals.Rendered, totals.Skipped, totals.Failed, humanize.Comma(int64(tracked)))
		return nil
	}

	app.Logger.Info("watching inbox", "inbox", *inbox, "output", *output, "palette", *paletteID)
	if err := facade.Watch(ctx); err != nil {
		return err
	}
	status := facade.GetStatus()
	tracked, err := facade.Tracked(context.Background())
	if err != nil {
		app.Logger.Warn("count tracked images failed", "error", err)
	}
	app.Logger.Info("stopped watching", "last_rendered", status.LastRendered, "last_failed", status.LastFailed, "tracked", tracked)
	return nil
}

func parseBackground(value string) (color.Color, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := config.ParseHexColor(value)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}
