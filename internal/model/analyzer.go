package model

import (
	"context"
)

// Analyzer defines the standard interface for an AI analyzer.
type Analyzer interface {
	// AnalyzeIncidents receives a text summary of confirmed incidents and returns the model's analysis.
	AnalyzeIncidents(ctx context.Context, input string) (string, error)
}

// Classifier maps a feature vector, in contract order, to a label.
type Classifier interface {
	Classify(data []string) (string, error)
}

// Enforcer applies a block rule for a single address.
type Enforcer interface {
	Block(ctx context.Context, ip string) error
}
