package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeadlinesFor(t *testing.T) {
	c, err := New("Asia/Kolkata", 20, 0)
	require.NoError(t, err)

	dl, err := c.DeadlinesFor("2026-08-06")
	require.NoError(t, err)

	require.Equal(t, 20, dl.LiveAt.Hour())
	require.Equal(t, 0, dl.LiveAt.Minute())
	require.True(t, dl.LockAt.Equal(dl.LiveAt.Add(-10*time.Minute)))
	require.True(t, dl.PaymentCutoffAt.Equal(dl.LiveAt.Add(-5*time.Minute)))
	require.True(t, dl.LiveEndAt.Equal(dl.LiveAt.Add(30*time.Minute)))
}

func TestDateKeyRoundTrip(t *testing.T) {
	c, err := New("Asia/Kolkata", 20, 0)
	require.NoError(t, err)

	loc := c.Location()
	at := time.Date(2026, 8, 6, 23, 59, 0, 0, loc)
	require.Equal(t, "2026-08-06", c.DateKey(at))
}

func TestDeadlinesForRejectsBadDate(t *testing.T) {
	c, err := New("Asia/Kolkata", 20, 0)
	require.NoError(t, err)

	_, err = c.DeadlinesFor("not-a-date")
	require.Error(t, err)
}
