package lidar

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerTimeout(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(500*time.Millisecond, clk)

	_, err := tr.Latest()
	assert.ErrorIs(t, err, ErrNoScan)

	tr.Update(Scan{Points: []Point{{Angle: 0, Distance: 1}}})
	scan, err := tr.Latest()
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), scan.Timestamp)

	clk.Add(500 * time.Millisecond)
	_, err = tr.Latest()
	assert.NoError(t, err)

	clk.Add(time.Millisecond)
	_, err = tr.Latest()
	assert.ErrorIs(t, err, ErrScanStale)
}

func TestTrackerKeepsLaterScan(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker(time.Second, clk)
	taken := clk.Now()

	assert.True(t, tr.Update(Scan{Timestamp: taken.Add(100 * time.Millisecond), Points: []Point{{Distance: 2}}}))
	assert.False(t, tr.Update(Scan{Timestamp: taken, Points: []Point{{Distance: 1}}}))

	scan, err := tr.Latest()
	require.NoError(t, err)
	assert.Equal(t, 2.0, scan.Points[0].Distance)
}

func TestClosest(t *testing.T) {
	scan := Scan{Points: []Point{
		{Angle: -0.5, Distance: 0.3},
		{Angle: 0.1, Distance: 0},
		{Angle: 0.2, Distance: 1.2},
		{Angle: -0.1, Distance: 0.8},
	}}

	p, ok := scan.Closest(-0.2, 0.2)
	require.True(t, ok)
	assert.Equal(t, 0.8, p.Distance)

	_, ok = scan.Closest(1, 2)
	assert.False(t, ok)
}
