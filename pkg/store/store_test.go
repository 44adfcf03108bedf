package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/beacongw/pkg/framework"
)

func TestStoreSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gw.db")
	s, err := Open(path)
	require.NoError(t, err)

	rec, err := s.LoadSession()
	require.NoError(t, err)
	assert.Nil(t, rec)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Clock = fx.FixedClock(now)
	require.NoError(t, s.SaveSession("S1", "G1"))
	require.NoError(t, s.SaveSession("S2", "G2"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err = s.LoadSession()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "S2", rec.Sid)
	assert.Equal(t, "G2", rec.Dtg)
	assert.Equal(t, now.Unix(), rec.UpdatedAt)
}

func TestStoreOpenFailure(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "gw.db"))
	assert.Error(t, err)
}
