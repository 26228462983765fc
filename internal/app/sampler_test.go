package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"meter-reader/internal/calibration"
	"meter-reader/internal/config"
	"meter-reader/internal/dial"
	"meter-reader/internal/frame"
	"meter-reader/internal/meter"
	"meter-reader/pkg/geometry"
)

var t0 = time.Date(2020, 12, 20, 8, 0, 0, 0, time.UTC)

// fakeSource yields blank frames at the given offsets from t0, then
// ErrExhausted. A nil offset fails that capture the way a camera does.
type fakeSource struct {
	offsets []*time.Duration
	n       int
}

func at(secs ...float64) []*time.Duration {
	var out []*time.Duration
	for _, s := range secs {
		if s < 0 {
			out = append(out, nil)
			continue
		}
		d := time.Duration(s * float64(time.Second))
		out = append(out, &d)
	}
	return out
}

func (s *fakeSource) Capture(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	if s.n >= len(s.offsets) {
		return frame.Frame{}, frame.ErrExhausted
	}
	off := s.offsets[s.n]
	s.n++
	if off == nil {
		return frame.Frame{}, frame.ErrNoImage
	}
	return frame.Frame{
		Mat:  gocv.NewMatWithSize(16, 16, gocv.MatTypeCV8U),
		Time: t0.Add(*off),
		Seq:  s.n,
	}, nil
}

// fakeReader returns scripted fast dial positions and register readings.
// The last register reading repeats.
type fakeReader struct {
	fast     []float64
	decades  [][dial.DecadeDials]float64
	fastN    int
	decadesN int
}

func (r *fakeReader) FastDial(gocv.Mat) (float64, error) {
	if r.fastN >= len(r.fast) {
		return 0, errors.New("no needle")
	}
	pos := r.fast[r.fastN]
	r.fastN++
	return pos, nil
}

func (r *fakeReader) Decades(gocv.Mat) ([dial.DecadeDials]float64, error) {
	i := r.decadesN
	if i >= len(r.decades) {
		i = len(r.decades) - 1
	}
	r.decadesN++
	return r.decades[i], nil
}

type memCalibration struct {
	set   dial.CalibrationSet
	saved int
}

func (m *memCalibration) Load() (dial.CalibrationSet, error) {
	if m.set == nil {
		return nil, calibration.ErrNotCalibrated
	}
	return m.set, nil
}

func (m *memCalibration) Save(set dial.CalibrationSet) error {
	m.set = set
	m.saved++
	return nil
}

var panel = dial.CalibrationSet{
	{Center: geometry.PointInt{X: 100, Y: 100}, Radius: 60},
	{Center: geometry.PointInt{X: 300, Y: 100}, Radius: 60},
	{Center: geometry.PointInt{X: 500, Y: 100}, Radius: 60},
	{Center: geometry.PointInt{X: 700, Y: 100}, Radius: 60},
	{Center: geometry.PointInt{X: 250, Y: 300}, Radius: 60},
	{Center: geometry.PointInt{X: 550, Y: 300}, Radius: 60},
}

// Register 123.4 ccf, see meter.TestCompose.
var register1234 = [dial.DecadeDials]float64{9.9, 1.2, 7.7, 3.4}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Period = config.Duration(time.Millisecond)
	cfg.Listen = ""
	return cfg
}

func newTestSampler(t *testing.T, cfg config.Config, src *fakeSource, r *fakeReader, cal *memCalibration) (*Sampler, *Store) {
	t.Helper()
	store := NewStore()
	s := NewSampler(cfg, src, cal, store)
	s.NewReader = func(set dial.CalibrationSet) DialReader {
		return r
	}
	s.Calibrate = func(gocv.Mat, dial.LocatorParams) (dial.CalibrationSet, error) {
		t.Fatal("unexpected calibration")
		return nil, nil
	}
	return s, store
}

func TestSamplerInitialize(t *testing.T) {
	src := &fakeSource{offsets: at(0)}
	r := &fakeReader{fast: []float64{9}, decades: [][4]float64{register1234}}
	s, store := newTestSampler(t, testConfig(), src, r, &memCalibration{set: panel})

	require.NoError(t, s.Initialize(context.Background()))

	snap := store.Snapshot()
	_, err := uuid.Parse(snap.Session)
	assert.NoError(t, err)
	assert.Equal(t, "steady", snap.Phase)
	assert.InDelta(t, 12340, snap.Total, 1e-9)
	assert.InDelta(t, 12340, snap.StartTotal, 1e-9)
	assert.InDelta(t, 123.4, snap.Register, 1e-9)
	assert.True(t, snap.RegisterValid)
	assert.Equal(t, t0, snap.RegisterTime)
	assert.Equal(t, t0, snap.LastSample)
	assert.Zero(t, snap.Committed)
}

func TestSamplerRunUntilExhausted(t *testing.T) {
	src := &fakeSource{offsets: at(0, 2, 4, 6)}
	// 0.2, 0.5, 0.7 then a 21 cf/min jump that is rejected
	r := &fakeReader{
		fast:    []float64{9, 7.5, 6.5, 3},
		decades: [][4]float64{register1234},
	}
	s, store := newTestSampler(t, testConfig(), src, r, &memCalibration{set: panel})
	require.NoError(t, s.Initialize(context.Background()))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, frame.ErrExhausted)

	snap := store.Snapshot()
	assert.InDelta(t, 12340.5, snap.Total, 1e-9)
	assert.InDelta(t, 6, snap.Rate, 1e-9)
	assert.InDelta(t, 7.5, snap.AverageRate, 1e-9)
	assert.Equal(t, 3, snap.Cycles)
	assert.Equal(t, 2, snap.Committed)
	assert.Equal(t, 1, snap.Rejected)
	assert.Equal(t, t0.Add(4*time.Second), snap.LastSample)
}

func TestSamplerRunRequiresInitialize(t *testing.T) {
	s, _ := newTestSampler(t, testConfig(), &fakeSource{}, &fakeReader{}, &memCalibration{set: panel})
	assert.Error(t, s.Run(context.Background()))
}

func TestSamplerSkipsFailedCaptures(t *testing.T) {
	src := &fakeSource{offsets: at(0, -1, 2)}
	r := &fakeReader{fast: []float64{9, 7.5}, decades: [][4]float64{register1234}}
	s, store := newTestSampler(t, testConfig(), src, r, &memCalibration{set: panel})
	require.NoError(t, s.Initialize(context.Background()))

	assert.ErrorIs(t, s.Run(context.Background()), frame.ErrExhausted)
	snap := store.Snapshot()
	assert.Equal(t, 1, snap.Errors)
	assert.Equal(t, 1, snap.Committed)
	assert.InDelta(t, 12340.3, snap.Total, 1e-9)
}

func TestSamplerStopsOnCancel(t *testing.T) {
	src := &fakeSource{offsets: at(0, 2)}
	r := &fakeReader{fast: []float64{9, 7.5}, decades: [][4]float64{register1234}}
	s, store := newTestSampler(t, testConfig(), src, r, &memCalibration{set: panel})
	require.NoError(t, s.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Zero(t, store.Snapshot().Errors)
}

func TestSamplerCalibratesWhenMissing(t *testing.T) {
	src := &fakeSource{offsets: at(0)}
	r := &fakeReader{fast: []float64{9}, decades: [][4]float64{register1234}}
	cal := &memCalibration{}
	s, _ := newTestSampler(t, testConfig(), src, r, cal)
	s.Calibrate = func(gocv.Mat, dial.LocatorParams) (dial.CalibrationSet, error) {
		return panel, nil
	}

	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 1, cal.saved)
	assert.Equal(t, panel, cal.set)
}

func TestSamplerDegradedCalibration(t *testing.T) {
	degraded := func(gocv.Mat, dial.LocatorParams) (dial.CalibrationSet, error) {
		return panel[:5], &dial.CalibrationError{Found: 5}
	}

	t.Run("refused by default", func(t *testing.T) {
		cal := &memCalibration{}
		s, _ := newTestSampler(t, testConfig(), &fakeSource{offsets: at(0)}, &fakeReader{}, cal)
		s.Calibrate = degraded

		err := s.Initialize(context.Background())
		var calErr *dial.CalibrationError
		require.ErrorAs(t, err, &calErr)
		assert.Equal(t, 5, calErr.Found)
		assert.Zero(t, cal.saved)
	})

	t.Run("allowed but not saved", func(t *testing.T) {
		cfg := testConfig()
		cfg.AllowDegradedCalibration = true
		cal := &memCalibration{}
		r := &fakeReader{fast: []float64{9}, decades: [][4]float64{register1234}}
		s, _ := newTestSampler(t, cfg, &fakeSource{offsets: at(0)}, r, cal)
		s.Calibrate = degraded

		require.NoError(t, s.Initialize(context.Background()))
		assert.Zero(t, cal.saved)
	})
}

func TestSamplerRegisterRegressionHolds(t *testing.T) {
	cfg := testConfig()
	cfg.ReconcileEvery = 1
	src := &fakeSource{offsets: at(0, 2, 4)}
	r := &fakeReader{
		fast: []float64{9, 7.5, 6.5},
		// Second read drops the hundreds digit: 23.4 ccf
		decades: [][4]float64{register1234, {9.9, 0.2, 7.7, 3.4}},
	}
	s, store := newTestSampler(t, cfg, src, r, &memCalibration{set: panel})
	require.NoError(t, s.Initialize(context.Background()))

	err := s.Cycle(context.Background())
	var reg *meter.RegressionError
	require.ErrorAs(t, err, &reg)
	assert.InDelta(t, 123.4, reg.Previous, 1e-9)

	snap := store.Snapshot()
	assert.Equal(t, 1, snap.Faults)
	assert.InDelta(t, 123.4, snap.Register, 1e-9)
	assert.Equal(t, t0, snap.RegisterTime, "register reference is held")
	// The fast dial sample still counts
	assert.InDelta(t, 12340.3, snap.Total, 1e-9)
}

func TestSamplerReset(t *testing.T) {
	src := &fakeSource{offsets: at(0, 2, 4)}
	r := &fakeReader{fast: []float64{9, 7.5, 6.5}, decades: [][4]float64{register1234}}
	s, store := newTestSampler(t, testConfig(), src, r, &memCalibration{set: panel})
	require.NoError(t, s.Initialize(context.Background()))

	ccf := 100.0
	require.True(t, s.Reset(ResetRequest{CCF: &ccf}))
	assert.False(t, s.Reset(ResetRequest{}), "only one reset may be pending")

	require.NoError(t, s.Cycle(context.Background()))
	snap := store.Snapshot()
	assert.InDelta(t, 10000, snap.Total, 1e-9)
	assert.InDelta(t, 10000, snap.StartTotal, 1e-9)
	assert.Zero(t, snap.Committed, "reset drops the fast dial reference")

	require.NoError(t, s.Cycle(context.Background()))
	assert.InDelta(t, 10000.2, store.Snapshot().Total, 1e-9)
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	store := NewStore()
	store.Publish(Snapshot{Total: 1})
	snap := store.Snapshot()
	snap.Total = 2
	assert.Equal(t, 1.0, store.Snapshot().Total)
}

func TestSamplerReconcileRefreshesRegister(t *testing.T) {
	cfg := testConfig()
	cfg.ReconcileEvery = 2
	src := &fakeSource{offsets: at(0, 2, 4)}
	r := &fakeReader{
		fast:    []float64{9, 7.5, 6.5},
		decades: [][4]float64{register1234, {9.9, 1.2, 7.7, 3.5}},
	}
	s, store := newTestSampler(t, cfg, src, r, &memCalibration{set: panel})
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.Cycle(context.Background()))
	assert.Equal(t, t0, store.Snapshot().RegisterTime, "not due yet")

	require.NoError(t, s.Cycle(context.Background()))
	snap := store.Snapshot()
	assert.InDelta(t, 123.5, snap.Register, 1e-9)
	assert.Equal(t, t0.Add(4*time.Second), snap.RegisterTime)
}
