package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Model types understood by LoadModel.
const (
	TypeForest          = "forest"
	TypeIsolationForest = "isolation_forest"
)

// Node is a binary split or a leaf. Samples with x[Feature] <= Threshold go left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`

	Class int `json:"class,omitempty"` // forest leaves
	Size  int `json:"size,omitempty"`  // isolation leaves: training samples that reached it
}

func (n *Node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

func (n *Node) maxFeature() int {
	if n == nil || n.leaf() {
		return -1
	}
	m := n.Feature
	if l := n.Left.maxFeature(); l > m {
		m = l
	}
	if r := n.Right.maxFeature(); r > m {
		m = r
	}
	return m
}

func (n *Node) validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidModel)
	}
	if n.leaf() {
		return nil
	}
	if n.Left == nil || n.Right == nil {
		return fmt.Errorf("%w: split on feature %d has a single child", ErrInvalidModel, n.Feature)
	}
	if err := n.Left.validate(); err != nil {
		return err
	}
	return n.Right.validate()
}

// Scaler standardizes inputs as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns the standardized copy of x.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

// Artifact is the JSON form of a trained model.
type Artifact struct {
	Type       string   `json:"type"`
	Labels     []string `json:"labels,omitempty"`
	Scaler     *Scaler  `json:"scaler,omitempty"`
	Trees      []*Node  `json:"trees"`
	SampleSize int      `json:"sample_size,omitempty"`
	Threshold  float64  `json:"threshold,omitempty"`
}

// Predictor maps encoded input to a label.
type Predictor interface {
	Predict(x []float64) string
	Labels() []string
}

// LoadModel reads an artifact from a JSON file.
func LoadModel(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON: %w", err)
	}
	return &a, nil
}

// Build validates the artifact against a feature count and returns its predictor.
func (a *Artifact) Build(features int) (Predictor, error) {
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("%w: no trees", ErrInvalidModel)
	}
	for i, t := range a.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		if m := t.maxFeature(); m >= features {
			return nil, fmt.Errorf("%w: tree %d splits on feature %d of %d", ErrInvalidModel, i, m, features)
		}
	}
	if a.Scaler != nil && (len(a.Scaler.Mean) != features || len(a.Scaler.Scale) != features) {
		return nil, fmt.Errorf("%w: scaler covers %d/%d of %d features", ErrInvalidModel, len(a.Scaler.Mean), len(a.Scaler.Scale), features)
	}

	switch a.Type {
	case TypeForest:
		labels := a.Labels
		if len(labels) == 0 {
			labels = []string{"benign", "attack"}
		}
		return &forest{trees: a.Trees, labels: labels}, nil
	case TypeIsolationForest:
		labels := a.Labels
		if len(labels) == 0 {
			labels = []string{"inlier", "outlier"}
		}
		if len(labels) != 2 {
			return nil, fmt.Errorf("%w: isolation forest needs two labels", ErrInvalidModel)
		}
		if a.SampleSize < 2 {
			return nil, fmt.Errorf("%w: sample_size must be at least 2", ErrInvalidModel)
		}
		threshold := a.Threshold
		if threshold == 0 {
			threshold = 0.5
		}
		return &isolationForest{trees: a.Trees, labels: labels, norm: averagePath(a.SampleSize), threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidModel, a.Type)
	}
}

// forest predicts by majority vote; ties go to the lowest class.
type forest struct {
	trees  []*Node
	labels []string
}

func (f *forest) Predict(x []float64) string {
	votes := make([]int, len(f.labels))
	for _, t := range f.trees {
		n := t
		for !n.leaf() {
			if x[n.Feature] <= n.Threshold {
				n = n.Left
			} else {
				n = n.Right
			}
		}
		if n.Class >= 0 && n.Class < len(votes) {
			votes[n.Class]++
		}
	}
	best := 0
	for i, v := range votes {
		if v > votes[best] {
			best = i
		}
	}
	return f.labels[best]
}

func (f *forest) Labels() []string { return f.labels }

type isolationForest struct {
	trees     []*Node
	labels    []string
	norm      float64
	threshold float64
}

// Score returns the anomaly score in (0, 1]; higher is more anomalous.
func (f *isolationForest) Score(x []float64) float64 {
	total := 0.0
	for _, t := range f.trees {
		depth := 0
		n := t
		for !n.leaf() {
			if x[n.Feature] <= n.Threshold {
				n = n.Left
			} else {
				n = n.Right
			}
			depth++
		}
		total += float64(depth) + averagePath(n.Size)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/f.norm)
}

func (f *isolationForest) Predict(x []float64) string {
	if f.Score(x) > f.threshold {
		return f.labels[1]
	}
	return f.labels[0]
}

func (f *isolationForest) Labels() []string { return f.labels }

// averagePath is the mean path length of an unsuccessful BST search over n points.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	harmonic := math.Log(float64(n-1)) + 0.5772156649
	return 2*harmonic - 2*float64(n-1)/float64(n)
}
