package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"meter-reader/internal/app"
	"meter-reader/internal/calibration"
	"meter-reader/internal/config"
	"meter-reader/internal/dial"
	"meter-reader/internal/frame"
	"meter-reader/internal/meter"
	"meter-reader/internal/server"
)

// overrides are command line settings that take precedence over the file.
type overrides struct {
	source        string
	start         int
	camera        string
	listen        string
	saveDir       string
	rateCeiling   float64
	allowDegraded bool
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.source, "images", "", "replay numbered frames from this directory")
	fs.IntVar(&o.start, "start", 0, "first frame number when replaying")
	fs.StringVar(&o.camera, "camera", "", "capture from this camera device")
	fs.StringVar(&o.listen, "listen", "", "HTTP listen address, \"off\" disables")
	fs.StringVar(&o.saveDir, "save-dir", "", "archive captured frames here")
	fs.Float64Var(&o.rateCeiling, "rate-ceiling", 0, "reject flows above this many cf/min")
	fs.BoolVar(&o.allowDegraded, "allow-degraded", false, "run with a calibration that did not find every dial")
}

func (o *overrides) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("images") {
		cfg.Source.Kind = config.SourceSequence
		cfg.Source.Dir = o.source
	}
	if fs.Changed("start") {
		cfg.Source.Start = o.start
	}
	if fs.Changed("camera") {
		cfg.Source.Kind = config.SourceCamera
		cfg.Source.Device = o.camera
	}
	if fs.Changed("listen") {
		cfg.Listen = o.listen
		if o.listen == "off" {
			cfg.Listen = ""
		}
	}
	if fs.Changed("save-dir") {
		cfg.SaveDir = o.saveDir
	}
	if fs.Changed("rate-ceiling") {
		cfg.RateCeiling = o.rateCeiling
	}
	if fs.Changed("allow-degraded") {
		cfg.AllowDegradedCalibration = o.allowDegraded
	}
}

func loadConfig(cmd *cobra.Command, o *overrides) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	o.apply(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logrus.WithFields(cfg.LogrusFields()).Info("config loaded")
	return cfg, nil
}

// openSource returns the configured frame source and a function releasing it.
func openSource(cfg config.Config) (frame.Source, func(), error) {
	rect := frame.NewRectifier(cfg.Corners)
	switch cfg.Source.Kind {
	case config.SourceCamera:
		cam, err := frame.OpenCamera(cfg.Source.Device, cfg.Source.Width, cfg.Source.Height, rect)
		if err != nil {
			return nil, nil, err
		}
		return cam, func() {
			if err := cam.Close(); err != nil {
				logrus.WithError(err).Warn("closing camera")
			}
		}, nil
	default:
		seq := frame.NewSequence(cfg.Source.Dir, cfg.Source.Start, cfg.Source.Ext, rect)
		return seq, func() {}, nil
	}
}

// NewRunCommand runs the sampling daemon.
func NewRunCommand() *cobra.Command {
	var (
		o           overrides
		reset       float64
		recalibrate bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sample the meter and serve readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &o)
			if err != nil {
				return err
			}
			var resetCCF *float64
			if cmd.Flags().Changed("reset") {
				if reset < 0 {
					return fmt.Errorf("reset reading must not be negative, got %v", reset)
				}
				resetCCF = &reset
			}
			return runDaemon(cfg, resetCCF, recalibrate)
		},
	}
	o.register(cmd.Flags())
	cmd.Flags().Float64Var(&reset, "reset", 0, "restart the total at this many ccf instead of the register reading")
	cmd.Flags().BoolVar(&recalibrate, "recalibrate", false, "discard the saved calibration and locate the dials again")
	return cmd
}

func runDaemon(cfg config.Config, reset *float64, recalibrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, closeSource, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	cal := calibration.NewStore(cfg.CalibrationPath)
	if recalibrate {
		if err := cal.Remove(); err != nil {
			return err
		}
	}

	store := app.NewStore()
	sampler := app.NewSampler(cfg, src, cal, store)
	if cfg.SaveDir != "" {
		archive, err := frame.NewArchive(cfg.SaveDir, cfg.Source.Start)
		if err != nil {
			return err
		}
		sampler.SetArchive(archive)
	}

	if err := sampler.Initialize(ctx); err != nil {
		return pkgerrors.Wrap(err, "initializing")
	}
	if reset != nil {
		sampler.Reset(app.ResetRequest{CCF: reset})
	}

	var srv *http.Server
	if cfg.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.Listen,
			Handler:           server.New(store, sampler, cfg.Tariff),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logrus.Infof("http server listening on %s", cfg.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("http server failed")
				stop()
			}
		}()
	}

	logrus.Info("sampling loop starts")
	err = sampler.Run(ctx)

	if srv != nil {
		logrus.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logrus.Errorf("failed to shutdown http server: %v", serr)
		}
	}

	snap := store.Snapshot()
	logrus.WithFields(logrus.Fields{
		"ccf":       snap.Total / meter.CFPerCCF,
		"committed": snap.Committed,
		"rejected":  snap.Rejected,
		"faults":    snap.Faults,
	}).Info("exiting")

	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, frame.ErrExhausted) && cfg.Source.Kind == config.SourceSequence:
		logrus.Info("replay finished")
		return nil
	}
	return err
}

// captureOne takes a single frame from the configured source.
func captureOne(cmd *cobra.Command, cfg config.Config) (frame.Frame, error) {
	src, closeSource, err := openSource(cfg)
	if err != nil {
		return frame.Frame{}, err
	}
	defer closeSource()
	return src.Capture(cmd.Context())
}

// NewCalibrateCommand locates the dials and saves the calibration.
func NewCalibrateCommand() *cobra.Command {
	var (
		o        overrides
		annotate string
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Locate the dials in one frame and save their positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &o)
			if err != nil {
				return err
			}
			f, err := captureOne(cmd, cfg)
			if err != nil {
				return err
			}
			defer f.Close()

			set, calErr := dial.Calibrate(f.Mat, cfg.Locator)
			var degraded *dial.CalibrationError
			if calErr != nil && !errors.As(calErr, &degraded) {
				return calErr
			}

			if annotate != "" {
				if err := writeAnnotated(annotate, f, set); err != nil {
					return err
				}
				logrus.Infof("annotated frame written to %s", annotate)
			}

			if degraded != nil {
				cmd.Println(color.RedString("found %d of %d dials, calibration not saved", degraded.Found, dial.ExpectedDials))
				return calErr
			}
			if err := calibration.NewStore(cfg.CalibrationPath).Save(set); err != nil {
				return err
			}
			bold := color.New(color.Bold).SprintfFunc()
			for i, d := range set {
				cmd.Printf("%s center (%d,%d) radius %d\n", bold("dial %d:", i), d.Center.X, d.Center.Y, d.Radius)
			}
			logrus.Infof("calibration saved to %s", cfg.CalibrationPath)
			return nil
		},
	}
	o.register(cmd.Flags())
	cmd.Flags().StringVar(&annotate, "annotate", "", "write the frame with the located dials outlined to this JPEG")
	return cmd
}

func writeAnnotated(path string, f frame.Frame, set dial.CalibrationSet) error {
	img := dial.Annotate(f.Mat, set)
	defer img.Close()
	buf, err := frame.EncodeJPEG(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// NewReadCommand reads the register once.
func NewReadCommand() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read every dial in one frame and print the register",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &o)
			if err != nil {
				return err
			}
			set, err := calibration.NewStore(cfg.CalibrationPath).Load()
			if err != nil {
				return pkgerrors.Wrap(err, "run calibrate first")
			}
			f, err := captureOne(cmd, cfg)
			if err != nil {
				return err
			}
			defer f.Close()

			g := app.NewGauge(set, cfg.Needle)
			raw, err := g.Decades(f.Mat)
			if err != nil {
				return err
			}
			fast, err := g.FastDial(f.Mat)
			if err != nil {
				return err
			}
			cmd.Printf("decades: %.2f %.2f %.2f %.2f\n", raw[0], raw[1], raw[2], raw[3])
			cmd.Printf("fast dial: %.2f\n", fast)
			cmd.Printf("register: %s\n", color.New(color.Bold, color.FgGreen).Sprintf("%.1f ccf", meter.Compose(raw)))
			return nil
		},
	}
	o.register(cmd.Flags())
	return cmd
}
