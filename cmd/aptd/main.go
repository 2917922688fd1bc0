// Aptd is the automatic APT ground station daemon.
//
// It loads configuration, starts the HTTP/WebSocket server, and runs the
// capture scheduler. Shutdown is handled gracefully on SIGINT or SIGTERM.
// The --predict and --update-tle flags run one-shot operations instead of
// the daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/sgebhart/apt-station/internal/app"
	"github.com/sgebhart/apt-station/internal/config"
	"github.com/sgebhart/apt-station/internal/predict"
	"github.com/sgebhart/apt-station/internal/telemetry"
	"github.com/sgebhart/apt-station/internal/tle"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/apt-station/apt-station.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		predictN   = pflag.Int("predict", 0, "Predict passes over the next N hours and exit")
		updateTLE  = pflag.Bool("update-tle", false, "Refresh the element cache and exit")
	)
	pflag.Parse()

	logger := log.New(os.Stdout, "aptd ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Printf("no config at %s, using defaults", *configPath)
			cfg = config.Default()
		} else {
			logger.Fatalf("config load failed: %v", err)
		}
	}

	store := tle.NewStore(cfg.Predict.TLEURL, cfg.Data.TLE, cfg.Predict.TLERefreshHours)

	if *updateTLE {
		set, err := store.Refresh()
		if err != nil {
			logger.Fatalf("element refresh failed: %v", err)
		}
		fmt.Printf("element cache updated: %d satellites at %s\n", len(set), store.CachePath())
		return
	}

	if *predictN > 0 {
		predictor := predict.New(cfg, store, telemetry.NewEmitter("predict", nil, logger, nil))
		if err := printPasses(os.Stdout, cfg, predictor, *predictN); err != nil {
			logger.Fatalf("prediction failed: %v", err)
		}
		return
	}

	a := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: *configPath,
		Bind:       *bind,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("aptd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}

// passSource is the prediction surface printPasses needs.
type passSource interface {
	ComputePasses(from time.Time, horizon time.Duration) ([]predict.Pass, error)
}

// printPasses runs a one-shot prediction over the next hours and renders
// every pass found in that window.
func printPasses(out io.Writer, cfg config.Config, src passSource, hours int) error {
	passes, err := src.ComputePasses(time.Now().UTC(), time.Duration(hours)*time.Hour)
	if err != nil {
		return err
	}
	if len(passes) == 0 {
		fmt.Fprintf(out, "no passes above %.0f° elevation in the next %dh\n",
			cfg.Reception.MinElevation, hours)
		return nil
	}

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSATELLITE\tAOS\tLOS\tMAX ELEV\tDURATION")
	for i, p := range passes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f°\t%s\n",
			i+1,
			p.Satellite,
			p.AOS.Local().Format("2006-01-02 15:04:05"),
			p.LOS.Local().Format("2006-01-02 15:04:05"),
			p.MaxElev,
			p.Duration.Truncate(time.Second),
		)
	}
	return w.Flush()
}
