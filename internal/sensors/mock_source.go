// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/gesture_link/internal/imu"
)

// Counts at range code 0 (±2g / ±250°/s); each higher code halves them.
const (
	mockCountsPerG   = 16384.0
	mockCountsPerDPS = 131.0
)

// MockMotion is one synthetic motion the mock source can replay.
type MockMotion struct {
	Name   string
	Accel  [3]float64 // g
	Gyro   [3]float64 // °/s
	Jitter float64    // fraction of full amplitude
}

// DefaultMockMotions cycle through rest, a wave and a spin.
var DefaultMockMotions = []MockMotion{
	{Name: "idle", Accel: [3]float64{0, 0, 1}, Jitter: 0.02},
	{Name: "wave", Accel: [3]float64{0.6, 0, 0.8}, Gyro: [3]float64{0, 0, 170}, Jitter: 0.1},
	{Name: "spin", Accel: [3]float64{0, 0, 1}, Gyro: [3]float64{0, 0, -230}, Jitter: 0.05},
}

type mockSource struct {
	start        time.Time
	period       time.Duration
	motions      []MockMotion
	countsPerG   float64
	countsPerDPS float64
	now          func() time.Time
}

// NewMockSource creates a raw IMU source that holds each motion for
// period and wobbles around it so consecutive samples differ. Counts are
// scaled for the given full-scale range codes, as a real part configured
// with them would report.
func NewMockSource(motions []MockMotion, period time.Duration, accelRange, gyroRange byte) imu.IMURawReader {
	if len(motions) == 0 {
		motions = DefaultMockMotions
	}
	return &mockSource{
		start:        time.Now(),
		period:       period,
		motions:      motions,
		countsPerG:   mockCountsPerG / float64(int(1)<<accelRange),
		countsPerDPS: mockCountsPerDPS / float64(int(1)<<gyroRange),
		now:          time.Now,
	}
}

func (m *mockSource) ReadRaw() (imu.IMURaw, error) {
	elapsed := m.now().Sub(m.start)
	idx := 0
	if m.period > 0 {
		idx = int(elapsed/m.period) % len(m.motions)
	}
	mo := m.motions[idx]
	w := 1 + mo.Jitter*math.Sin(elapsed.Seconds()*7)

	return imu.IMURaw{
		Source: "mock",
		Ax:     toCounts(mo.Accel[0]*w, m.countsPerG),
		Ay:     toCounts(mo.Accel[1]*w, m.countsPerG),
		Az:     toCounts(mo.Accel[2]*w, m.countsPerG),
		Gx:     toCounts(mo.Gyro[0]*w, m.countsPerDPS),
		Gy:     toCounts(mo.Gyro[1]*w, m.countsPerDPS),
		Gz:     toCounts(mo.Gyro[2]*w, m.countsPerDPS),
	}, nil
}

func toCounts(v, scale float64) int16 {
	c := math.Round(v * scale)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, c)))
}
