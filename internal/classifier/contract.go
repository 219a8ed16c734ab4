// Package classifier loads trained model artifacts and applies them to
// feature vectors received from sensors.
package classifier

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

var (
	// ErrDimension is returned when a vector does not match the contract length.
	ErrDimension = errors.New("feature vector length does not match contract")
	// ErrUnknownValue is returned for a numeric field that does not parse.
	ErrUnknownValue = errors.New("unparseable feature value")
	// ErrInvalidModel is returned for artifacts inconsistent with their contract.
	ErrInvalidModel = errors.New("invalid model artifact")
)

// otherCategory absorbs categorical values unseen during training.
const otherCategory = "other"

// Feature is a single contract entry. Categorical features list their
// vocabulary; the encoded value is the index in that list.
type Feature struct {
	Name       string   `yaml:"name"`
	Categories []string `yaml:"categories,omitempty"`
}

// Contract fixes the order and cardinality of feature vectors.
type Contract struct {
	Features []Feature `yaml:"features"`

	index []map[string]int
}

// LoadContract reads a contract from a YAML file.
func LoadContract(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract: %w", err)
	}
	var c Contract
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contract YAML: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewContract builds a contract in memory.
func NewContract(features []Feature) (*Contract, error) {
	c := &Contract{Features: features}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contract) init() error {
	if len(c.Features) == 0 {
		return errors.New("contract lists no features")
	}
	seen := make(map[string]bool, len(c.Features))
	c.index = make([]map[string]int, len(c.Features))
	for i, f := range c.Features {
		if f.Name == "" {
			return fmt.Errorf("contract feature %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate contract feature %q", f.Name)
		}
		seen[f.Name] = true
		if len(f.Categories) == 0 {
			continue
		}
		c.index[i] = make(map[string]int, len(f.Categories))
		for j, cat := range f.Categories {
			c.index[i][cat] = j
		}
	}
	return nil
}

// Len returns the number of features.
func (c *Contract) Len() int {
	return len(c.Features)
}

// Names returns the feature names in order.
func (c *Contract) Names() []string {
	names := make([]string, len(c.Features))
	for i, f := range c.Features {
		names[i] = f.Name
	}
	return names
}

// Encode validates data against the contract and converts it to model input.
func (c *Contract) Encode(data []string) ([]float64, error) {
	if len(data) != len(c.Features) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(data), len(c.Features))
	}
	out := make([]float64, len(data))
	for i, raw := range data {
		if idx := c.index[i]; idx != nil {
			v, ok := idx[raw]
			if !ok {
				v = idx[otherCategory] // zero when the vocabulary has no "other"
			}
			out[i] = float64(v)
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrUnknownValue, c.Features[i].Name, raw)
		}
		out[i] = v
	}
	return out, nil
}
