package classifier

import (
	"fmt"

	"Go2NetShield/internal/config"
)

// Engine pairs a contract with a trained model. It satisfies model.Classifier
// and is safe for concurrent use.
type Engine struct {
	contract  *Contract
	scaler    *Scaler
	predictor Predictor
}

// NewEngine validates the artifact against the contract.
func NewEngine(contract *Contract, artifact *Artifact) (*Engine, error) {
	p, err := artifact.Build(contract.Len())
	if err != nil {
		return nil, err
	}
	return &Engine{contract: contract, scaler: artifact.Scaler, predictor: p}, nil
}

// Load reads both files named by the artifacts config.
func Load(files config.ModelArtifacts) (*Engine, error) {
	contract, err := LoadContract(files.Contract)
	if err != nil {
		return nil, err
	}
	artifact, err := LoadModel(files.Model)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(contract, artifact)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", files.Model, err)
	}
	return e, nil
}

// Classify encodes data per the contract and returns the model's label.
func (e *Engine) Classify(data []string) (string, error) {
	x, err := e.contract.Encode(data)
	if err != nil {
		return "", err
	}
	if e.scaler != nil {
		x = e.scaler.Transform(x)
	}
	return e.predictor.Predict(x), nil
}

// Contract returns the contract the engine validates against.
func (e *Engine) Contract() *Contract {
	return e.contract
}

// Labels returns the possible outputs of Classify.
func (e *Engine) Labels() []string {
	return e.predictor.Labels()
}
