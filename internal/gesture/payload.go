// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gesture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned by ParsePayload when the text is not
// "<label> : <confidence>".
var ErrMalformedPayload = errors.New("gesture: malformed payload")

const (
	payloadSeparator   = " : "
	confidenceDecimals = 6
)

// EncodePayload renders a prediction as "<label> : <confidence>" with the
// confidence printed to six decimal places.
func EncodePayload(p Prediction) string {
	return p.Label + payloadSeparator + strconv.FormatFloat(p.Confidence, 'f', confidenceDecimals, 64)
}

// Decoded is a payload parsed on the display side.
type Decoded struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	// ConfidenceText is the confidence exactly as it was sent.
	ConfidenceText string `json:"confidence_text"`
}

func (d Decoded) String() string {
	return d.Label + payloadSeparator + d.ConfidenceText
}

// ParsePayload splits a payload on its last colon. Both "<label> : <conf>"
// and "<label>: <conf>" are accepted.
func ParsePayload(s string) (Decoded, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return Decoded{}, fmt.Errorf("%w: no separator in %q", ErrMalformedPayload, s)
	}

	label := strings.TrimSpace(s[:idx])
	text := strings.TrimSpace(s[idx+1:])
	if label == "" || text == "" {
		return Decoded{}, fmt.Errorf("%w: empty label or confidence in %q", ErrMalformedPayload, s)
	}

	conf, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: confidence %q: %v", ErrMalformedPayload, text, err)
	}

	return Decoded{Label: label, Confidence: conf, ConfidenceText: text}, nil
}
