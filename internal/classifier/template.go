// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/relabs-tech/gesture_link/internal/gesture"
)

var errZeroVector = errors.New("zero-magnitude feature vector")

// Template is one labelled reference motion.
type Template struct {
	Label    string    `json:"label"`
	Source   string    `json:"source,omitempty"`
	Features []float64 `json:"features"`
}

// TemplateModel scores a feature vector against a small template bank by
// cosine similarity. Each label's confidence is its best template score.
type TemplateModel struct {
	templates []Template
	labels    []string // first-seen order
}

// NewTemplateModel validates and normalises the templates.
func NewTemplateModel(templates []Template) (*TemplateModel, error) {
	if len(templates) == 0 {
		return nil, errors.New("classifier: no templates")
	}

	seen := make(map[string]bool)
	m := &TemplateModel{templates: make([]Template, 0, len(templates))}
	for _, tpl := range templates {
		if tpl.Label == "" {
			return nil, errors.New("classifier: template with empty label")
		}
		if len(tpl.Features) != gesture.FeatureCount {
			return nil, fmt.Errorf("classifier: template %s has %d features, expected %d",
				tpl.Label, len(tpl.Features), gesture.FeatureCount)
		}
		feats := append([]float64(nil), tpl.Features...)
		if !normalise(feats) {
			return nil, fmt.Errorf("classifier: template %s is all zeros", tpl.Label)
		}
		m.templates = append(m.templates, Template{Label: tpl.Label, Source: tpl.Source, Features: feats})
		if !seen[tpl.Label] {
			seen[tpl.Label] = true
			m.labels = append(m.labels, tpl.Label)
		}
	}
	return m, nil
}

// NewTemplateModelFromFile loads a JSON array of templates.
func NewTemplateModelFromFile(path string) (*TemplateModel, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var templates []Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}
	return NewTemplateModel(templates)
}

// Labels returns the known classes in template file order.
func (m *TemplateModel) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Classify returns one entry per label ranked by confidence.
func (m *TemplateModel) Classify(fv gesture.FeatureVector) (gesture.Result, error) {
	vec := append([]float64(nil), fv[:]...)
	if !normalise(vec) {
		return nil, errZeroVector
	}

	best := make(map[string]float64, len(m.labels))
	for _, tpl := range m.templates {
		conf := similarityToConfidence(dot(vec, tpl.Features))
		if cur, ok := best[tpl.Label]; !ok || conf > cur {
			best[tpl.Label] = conf
		}
	}

	res := make(gesture.Result, 0, len(m.labels))
	for _, label := range m.labels {
		res = append(res, gesture.Classification{Label: label, Confidence: best[label]})
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Confidence > res[j].Confidence
	})
	return res, nil
}

func normalise(v []float64) bool {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return false
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
	return true
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// similarityToConfidence maps cosine similarity [-1,1] onto [0,1].
func similarityToConfidence(sim float64) float64 {
	return math.Max(0, math.Min(1, (sim+1)/2))
}
