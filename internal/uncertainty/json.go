package uncertainty

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/prognostics/internal/schema"
)

// JSON codec for the Distribution variants. NaN (an unresolved value) is
// not representable in JSON, so every numeric field travels as a nullable
// value with null standing in for NaN.

const (
	typeScalar  = "scalar"
	typeSamples = "samples"
	typeNormal  = "normal"
)

type envelope struct {
	Type   string         `json:"type"`
	Keys   []string       `json:"keys"`
	Values []*float64     `json:"values,omitempty"`
	Points [][]*float64   `json:"points,omitempty"`
	Mean   []*float64     `json:"mean,omitempty"`
	Cov    [][]*float64   `json:"cov,omitempty"`
}

// Marshal encodes a distribution, tagged with its variant so Unmarshal can
// reconstruct the concrete type.
func Marshal(d Distribution) ([]byte, error) {
	env := envelope{Keys: d.Schema().Keys()}
	switch v := d.(type) {
	case *Scalar:
		env.Type = typeScalar
		env.Values = encodeVector(v.values)
	case *Samples:
		env.Type = typeSamples
		env.Points = make([][]*float64, len(v.points))
		for i, p := range v.points {
			env.Points[i] = encodeVector(p)
		}
	case *MultivariateNormal:
		env.Type = typeNormal
		env.Mean = encodeVector(v.mean)
		env.Cov = encodeMatrix(v.cov)
	default:
		return nil, fmt.Errorf("uncertainty: cannot marshal %T", d)
	}
	return json.Marshal(env)
}

// Unmarshal decodes a distribution previously encoded with Marshal.
func Unmarshal(data []byte) (Distribution, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	sch := schema.New(env.Keys...)
	switch env.Type {
	case typeScalar:
		return NewScalar(sch, decodeVector(env.Values))
	case typeSamples:
		points := make([][]float64, len(env.Points))
		for i, p := range env.Points {
			points[i] = decodeVector(p)
		}
		return NewSamples(sch, points)
	case typeNormal:
		mean := decodeVector(env.Mean)
		n := sch.Len()
		cov := mat.NewSymDense(n, nil)
		if len(env.Cov) != n {
			return nil, fmt.Errorf("uncertainty: covariance has %d rows for %d keys", len(env.Cov), n)
		}
		for i, row := range env.Cov {
			vals := decodeVector(row)
			if len(vals) != n {
				return nil, fmt.Errorf("uncertainty: covariance row %d has %d values for %d keys", i, len(vals), n)
			}
			for j := i; j < n; j++ {
				cov.SetSym(i, j, vals[j])
			}
		}
		return NewMultivariateNormal(sch, mean, cov)
	default:
		return nil, fmt.Errorf("uncertainty: unknown distribution type %q", env.Type)
	}
}

func encodeVector(v []float64) []*float64 {
	out := make([]*float64, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		val := x
		out[i] = &val
	}
	return out
}

func decodeVector(v []*float64) []float64 {
	out := make([]float64, len(v))
	for i, p := range v {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	return out
}

func encodeMatrix(m *mat.SymDense) [][]*float64 {
	n := m.SymmetricDim()
	out := make([][]*float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = encodeVector(row)
	}
	return out
}
