package upstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEpochFromUTC(t *testing.T) {
	got, err := EpochFromUTC("2026-03-01T06:30:00Z")
	require.NoError(t, err)
	require.Equal(t, int64(1772346600), got)
}

func TestEpochFromUTCAcceptsZeroOffset(t *testing.T) {
	got, err := EpochFromUTC("2026-03-01T06:30:00+00:00")
	require.NoError(t, err)
	require.Equal(t, int64(1772346600), got)
}

func TestEpochFromUTCRejectsMissingDesignator(t *testing.T) {
	_, err := EpochFromUTC("2026-03-01T06:30:00")
	require.Error(t, err)
	require.Contains(t, err.Error(), "2026-03-01T06:30:00")
}

func TestEpochFromUTCRejectsLocalOffset(t *testing.T) {
	_, err := EpochFromUTC("2026-03-01T06:30:00+02:00")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not UTC")
}

func TestEpochFromUTCRejectsGarbage(t *testing.T) {
	_, err := EpochFromUTC("yesterday-ish")
	require.Error(t, err)
}
