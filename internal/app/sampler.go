package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"meter-reader/internal/calibration"
	"meter-reader/internal/config"
	"meter-reader/internal/dial"
	"meter-reader/internal/frame"
	"meter-reader/internal/meter"
)

// CalibrationStore persists the dial calibration.
type CalibrationStore interface {
	Load() (dial.CalibrationSet, error)
	Save(dial.CalibrationSet) error
}

// ResetRequest asks the sampler to restart the total. A nil CCF re-reads
// the register from the next frame.
type ResetRequest struct {
	CCF *float64
}

// Sampler owns the meter state. Run drives it from a single goroutine; other
// goroutines observe it through the Store and request resets through Reset.
type Sampler struct {
	cfg   config.Config
	src   frame.Source
	cal   CalibrationStore
	store *Store

	// Replaceable for tests.
	Calibrate func(gocv.Mat, dial.LocatorParams) (dial.CalibrationSet, error)
	NewReader func(dial.CalibrationSet) DialReader

	archive *frame.Archive
	reader  DialReader
	acc     *meter.Accumulator
	rec     meter.Reconciler
	resets  chan ResetRequest

	snap Snapshot
}

// NewSampler creates a sampler. The source is wrapped so captures never
// overlap.
func NewSampler(cfg config.Config, src frame.Source, cal CalibrationStore, store *Store) *Sampler {
	s := &Sampler{
		cfg:       cfg,
		src:       frame.NewLocked(src),
		cal:       cal,
		store:     store,
		Calibrate: dial.Calibrate,
		acc:       meter.NewAccumulator(cfg.RateCeiling, cfg.RateWindow),
		resets:    make(chan ResetRequest, 1),
		snap:      Snapshot{Session: uuid.NewString()},
	}
	s.NewReader = func(set dial.CalibrationSet) DialReader {
		return NewGauge(set, cfg.Needle)
	}
	return s
}

// SetArchive saves every captured frame to a.
func (s *Sampler) SetArchive(a *frame.Archive) {
	s.archive = a
}

// Reset queues an operator reset for the next cycle. It reports false when
// one is already pending.
func (s *Sampler) Reset(req ResetRequest) bool {
	select {
	case s.resets <- req:
		return true
	default:
		return false
	}
}

// Initialize captures the first frame, loads or computes the calibration and
// seeds the total from the decade dials.
func (s *Sampler) Initialize(ctx context.Context) error {
	f, err := s.src.Capture(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "capturing first frame")
	}
	defer f.Close()
	s.saveFrame(f)

	set, err := s.calibration(f.Mat)
	if err != nil {
		return err
	}
	s.reader = s.NewReader(set)

	if err := s.seed(f); err != nil {
		return err
	}
	s.snap.StartTotal = s.acc.State().Total

	// The first frame also seeds the fast dial reference.
	if pos, err := s.reader.FastDial(f.Mat); err == nil {
		s.observe(pos, f.Time)
	} else {
		logrus.WithError(err).Warn("reading fast dial on first frame")
	}
	s.publish(&f.Mat)
	return nil
}

func (s *Sampler) calibration(mat gocv.Mat) (dial.CalibrationSet, error) {
	set, err := s.cal.Load()
	if err == nil {
		logrus.WithField("dials", len(set)).Info("using saved calibration")
		return set, nil
	}
	if !errors.Is(err, calibration.ErrNotCalibrated) {
		return nil, err
	}

	logrus.Info("no saved calibration, locating dials")
	set, err = s.Calibrate(mat, s.cfg.Locator)
	var calErr *dial.CalibrationError
	switch {
	case errors.As(err, &calErr):
		if !s.cfg.AllowDegradedCalibration {
			return nil, err
		}
		logrus.WithError(err).Warn("continuing with degraded calibration, not saving it")
		return set, nil
	case err != nil:
		return nil, pkgerrors.Wrap(err, "calibrating")
	}

	if err := s.cal.Save(set); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Sampler) readRegister(f frame.Frame) (float64, error) {
	raw, err := s.reader.Decades(f.Mat)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "reading decade dials")
	}
	ccf := meter.Compose(raw)
	logrus.WithFields(logrus.Fields{
		"dials": raw,
		"ccf":   ccf,
	}).Debug("register")
	return ccf, nil
}

func (s *Sampler) seed(f frame.Frame) error {
	ccf, err := s.readRegister(f)
	if err != nil {
		return err
	}
	s.acc.Seed(ccf)
	s.rec.Reset()
	if _, err := s.rec.Check(ccf, s.acc.State().Total); err != nil {
		return err
	}
	s.snap.Register, s.snap.RegisterValid, s.snap.RegisterTime = ccf, true, f.Time
	logrus.WithField("ccf", ccf).Info("seeded total from register")
	return nil
}

// Run samples until the context is cancelled or the source is exhausted.
// Initialize must have succeeded first.
func (s *Sampler) Run(ctx context.Context) error {
	if s.reader == nil {
		return errors.New("sampler not initialized")
	}
	period := time.Duration(s.cfg.Period)
	for {
		err := s.Cycle(ctx)
		switch {
		case errors.Is(err, frame.ErrExhausted):
			logrus.Info("frame source exhausted")
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logrus.WithError(err).Warn("sampling cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(period):
		}
	}
}

// Cycle runs one capture and read.
func (s *Sampler) Cycle(ctx context.Context) error {
	f, err := s.src.Capture(ctx)
	if err != nil {
		if !errors.Is(err, frame.ErrExhausted) && ctx.Err() == nil {
			s.snap.Errors++
			s.publish(nil)
		}
		return err
	}
	defer f.Close()
	s.snap.Cycles++
	s.saveFrame(f)

	select {
	case req := <-s.resets:
		if err := s.applyReset(req, f); err != nil {
			s.publish(&f.Mat)
			return err
		}
	default:
	}

	pos, err := s.reader.FastDial(f.Mat)
	if err != nil {
		s.snap.Errors++
		s.publish(&f.Mat)
		return err
	}
	s.observe(pos, f.Time)

	var rerr error
	if n := s.cfg.ReconcileEvery; n > 0 && s.snap.Cycles%n == 0 {
		rerr = s.reconcile(f)
	}
	s.publish(&f.Mat)
	return rerr
}

func (s *Sampler) observe(pos float64, t time.Time) {
	sample := s.acc.Observe(meter.RunningPosition(pos), t)
	s.snap.Position = pos
	switch sample.Outcome {
	case meter.OutcomeCommitted:
		s.snap.Committed++
		st := s.acc.State()
		logrus.WithFields(logrus.Fields{
			"position": pos,
			"elapsed":  sample.Elapsed.Seconds(),
			"cf":       st.Total,
			"cfm":      sample.Rate,
		}).Info("sample")
	case meter.OutcomeIdle:
		s.snap.Idle++
	case meter.OutcomeRejected:
		s.snap.Rejected++
	}
}

func (s *Sampler) reconcile(f frame.Frame) error {
	ccf, err := s.readRegister(f)
	if err != nil {
		return err
	}
	total := s.acc.State().Total
	drift, err := s.rec.Check(ccf, total)
	var reg *meter.RegressionError
	if errors.As(err, &reg) {
		s.snap.Faults++
		logrus.WithFields(logrus.Fields{
			"previous": reg.Previous,
			"reading":  reg.Reading,
		}).Error("register regression, holding total until reset")
		return err
	}
	s.snap.Register, s.snap.RegisterValid, s.snap.RegisterTime = ccf, true, f.Time
	logrus.WithFields(logrus.Fields{
		"ccf":   ccf,
		"total": total,
		"drift": drift,
	}).Debug("reconciled")
	return nil
}

func (s *Sampler) applyReset(req ResetRequest, f frame.Frame) error {
	if req.CCF == nil {
		ccf, err := s.readRegister(f)
		if err != nil {
			return err
		}
		req.CCF = &ccf
	}
	s.acc.Reset(*req.CCF)
	s.rec.Reset()
	if _, err := s.rec.Check(*req.CCF, s.acc.State().Total); err != nil {
		return err
	}
	s.snap.Register, s.snap.RegisterValid, s.snap.RegisterTime = *req.CCF, true, f.Time
	s.snap.StartTotal = s.acc.State().Total
	logrus.WithField("ccf", *req.CCF).Warn("operator reset")
	return nil
}

func (s *Sampler) saveFrame(f frame.Frame) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.Save(f); err != nil {
		logrus.WithError(err).Warn("archiving frame")
	}
}

// publish copies the state into the store. img, when not nil, replaces the
// published frame.
func (s *Sampler) publish(img *gocv.Mat) {
	st := s.acc.State()
	s.snap.Phase = st.Phase.String()
	s.snap.Total = st.Total
	s.snap.Rate = st.Rate
	s.snap.AverageRate = s.acc.AverageRate()
	s.snap.LastSample = st.LastTime
	s.snap.Updated = time.Now()

	if s.cfg.Listen != "" && img != nil && !img.Empty() {
		if buf, err := frame.EncodeJPEG(*img); err == nil {
			s.snap.Image = buf
		} else {
			logrus.WithError(err).Debug("encoding frame")
		}
	}
	s.store.Publish(s.snap)
}
