package main

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"syscall"

	fyne "fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/max10788/candlescope/src/config"
	"github.com/max10788/candlescope/src/logging"
)

// dark theme wrapper
type darkTheme struct{}

func (d *darkTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}
func (d *darkTheme) Font(style fyne.TextStyle) fyne.Resource { return theme.DefaultTheme().Font(style) }
func (d *darkTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}
func (d *darkTheme) Size(name fyne.ThemeSizeName) float32 { return theme.DefaultTheme().Size(name) }

func main() {
	// a local .env may carry CANDLESCOPE_* overrides
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	fs := pflag.NewFlagSet("candleviewer", pflag.ExitOnError)
	config.RegisterFlags(fs)
	printConfig := fs.Bool("print-config", false, "print the effective configuration and exit")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Pretty)

	if *printConfig {
		if err := cfg.Print(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "print config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Viewer.Screenshots != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := RunScreenshotsMode(ctx, cfg, cfg.Viewer.Screenshots); err != nil {
			logging.Errorf("screenshots: %v", err)
			os.Exit(1)
		}
		logging.Infof("screenshots written to %s", cfg.Viewer.Screenshots)
		return
	}

	a := app.NewWithID("io.candlescope.viewer")
	a.Settings().SetTheme(&darkTheme{})
	if err := runViewer(a, cfg); err != nil {
		logging.Errorf("viewer: %v", err)
		os.Exit(1)
	}
}
