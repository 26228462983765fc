package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meter-reader/internal/dial"
	"meter-reader/pkg/geometry"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "sub", "settings.json"))
	set := dial.CalibrationSet{
		{Center: geometry.PointInt{X: 90, Y: 100}, Radius: 61},
		{Center: geometry.PointInt{X: 560, Y: 300}, Radius: 62},
	}
	require.NoError(t, s.Save(set))

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `[[90,100,61],[560,300,62]]`, string(data))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestStoreMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotCalibrated)
	assert.NoError(t, s.Remove())
}

func TestStoreRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewStore(path)

	require.NoError(t, os.WriteFile(path, []byte(`{"x":1}`), 0o644))
	_, err := s.Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[[1,2,0]]`), 0o644))
	_, err = s.Load()
	assert.Error(t, err)
}

func TestStoreRemove(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, s.Save(dial.CalibrationSet{{Radius: 5}}))
	require.NoError(t, s.Remove())
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotCalibrated)
}
