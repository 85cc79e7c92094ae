// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sampler turns raw IMU counts into the feature vector the
// classifier was trained on.
package sampler

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/gesture_link/internal/gesture"
	"github.com/relabs-tech/gesture_link/internal/imu"
)

const standardGravity = 9.80665 // m/s²

// ErrSampleFailed wraps any IMU read failure. Callers skip the tick.
var ErrSampleFailed = errors.New("sampler: sample failed")

// Sampler pulls one sample per call and scales it to SI units.
type Sampler struct {
	src        imu.IMURawReader
	accelScale float64 // counts -> m/s²
	gyroScale  float64 // counts -> rad/s
}

// New builds a sampler for an IMU configured with the given full-scale
// range codes (0-3, as in the MPU-9250 ACCEL_FS_SEL / GYRO_FS_SEL fields).
func New(src imu.IMURawReader, accelRange, gyroRange byte) (*Sampler, error) {
	if accelRange > 3 {
		return nil, fmt.Errorf("sampler: accel range must be 0-3, got %d", accelRange)
	}
	if gyroRange > 3 {
		return nil, fmt.Errorf("sampler: gyro range must be 0-3, got %d", gyroRange)
	}

	countsPerG := 16384.0 / float64(int(1)<<accelRange)
	countsPerDPS := 131.0 / float64(int(1)<<gyroRange)

	return &Sampler{
		src:        src,
		accelScale: standardGravity / countsPerG,
		gyroScale:  (math.Pi / 180.0) / countsPerDPS,
	}, nil
}

// Sample reads the IMU once and returns ax, ay, az, gx, gy, gz.
func (s *Sampler) Sample() (gesture.FeatureVector, error) {
	raw, err := s.src.ReadRaw()
	if err != nil {
		return gesture.FeatureVector{}, fmt.Errorf("%w: %w", ErrSampleFailed, err)
	}

	return gesture.FeatureVector{
		float64(raw.Ax) * s.accelScale,
		float64(raw.Ay) * s.accelScale,
		float64(raw.Az) * s.accelScale,
		float64(raw.Gx) * s.gyroScale,
		float64(raw.Gy) * s.gyroScale,
		float64(raw.Gz) * s.gyroScale,
	}, nil
}
