package escalation

import (
	"encoding/json"
	"math"
	"os"

	"github.com/rhamenator/antiscrape/internal/apperr"
	"github.com/rhamenator/antiscrape/internal/reqmeta"
)

// Model is the pre-trained classifier consulted in §4.5 step 4. A model
// is a simple logistic-regression-style linear combination over a fixed
// set of numeric/boolean features plus a bias term, serialized as JSON —
// no Go ML-serving library (ONNX runtime, TensorFlow bindings, etc.)
// appears anywhere in the retrieved corpus, so loading and scoring it is
// hand-rolled; this mirrors the donor system's own scikit-learn
// LogisticRegression export, reduced to the linear form a request-path
// scorer actually needs at inference time.
type Model struct {
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

// LoadModel reads a model from path. A missing or unreadable file is a
// Configuration-kind failure: the Escalation Engine simply runs without a
// model (F = rule) rather than refusing to start.
func LoadModel(path string) (*Model, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Configuration("escalation.LoadModel", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.Configuration("escalation.LoadModel", err)
	}
	return &m, nil
}

// Score applies the logistic function to the model's linear combination
// over fv's numeric/boolean features, returning a value in [0,1].
func (m *Model) Score(fv reqmeta.FeatureVector) float64 {
	z := m.Bias
	for name, weight := range m.Weights {
		z += weight * featureAsFloat(fv[name])
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

func featureAsFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}
