package experiment

import (
	"math"

	"github.com/nvandessel/netsweep/internal/constants"
)

// GetFloat64 safely extracts a number from an open parameter mapping,
// returning defaultVal if the key is absent.
func GetFloat64(m map[string]float64, key string, defaultVal float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return defaultVal
}

// GetInt extracts an integer from an open parameter mapping. Values written
// as floats (JSON numbers, range steps) are rounded to the nearest integer.
func GetInt(m map[string]float64, key string, defaultVal int) int {
	if v, ok := m[key]; ok {
		return int(math.Round(v))
	}
	return defaultVal
}

// InputView reads input parameters with the simulator's defaults.
type InputView struct {
	m map[string]float64
}

// InputParams returns typed accessors over p.Input.
func (p Parameters) InputParams() InputView { return InputView{m: p.Input} }

// BurstSize is the number of spikes per input burst.
func (v InputView) BurstSize() int { return GetInt(v.m, "burst_size", constants.DefaultBurstSize) }

// TimeWindow is the time allotted to each sample in ms.
func (v InputView) TimeWindow() float64 {
	return GetFloat64(v.m, "time_window", constants.DefaultTimeWindow)
}

// ISI is the inter-spike interval within a burst in ms.
func (v InputView) ISI() float64 { return GetFloat64(v.m, "isi", constants.DefaultISI) }

// SigmaT is the per-spike jitter standard deviation.
func (v InputView) SigmaT() float64 { return GetFloat64(v.m, "sigma_t", constants.DefaultSigmaT) }

// SigmaTOffs is the per-burst offset jitter standard deviation.
func (v InputView) SigmaTOffs() float64 {
	return GetFloat64(v.m, "sigma_t_offs", constants.DefaultSigmaTOffs)
}

// DataView reads sample dimensions. Files name them differently
// (n_bits vs n_bits_in/n_bits_out), so the directional accessors fall back
// to the shared key.
type DataView struct {
	m map[string]float64
}

// DataParams returns typed accessors over p.Data.
func (p Parameters) DataParams() DataView { return DataView{m: p.Data} }

// Int returns an integer data key, or defaultVal if absent.
func (v DataView) Int(key string, defaultVal int) int { return GetInt(v.m, key, defaultVal) }

// BitsIn returns n_bits_in, falling back to n_bits.
func (v DataView) BitsIn() int { return GetInt(v.m, "n_bits_in", GetInt(v.m, "n_bits", 0)) }

// BitsOut returns n_bits_out, falling back to n_bits.
func (v DataView) BitsOut() int { return GetInt(v.m, "n_bits_out", GetInt(v.m, "n_bits", 0)) }

// OnesIn returns n_ones_in, falling back to n_ones.
func (v DataView) OnesIn() int { return GetInt(v.m, "n_ones_in", GetInt(v.m, "n_ones", 0)) }

// OnesOut returns n_ones_out, falling back to n_ones.
func (v DataView) OnesOut() int { return GetInt(v.m, "n_ones_out", GetInt(v.m, "n_ones", 0)) }

// Samples returns n_samples.
func (v DataView) Samples() int { return GetInt(v.m, "n_samples", 0) }

// NeuronTypeOrDefault returns the neuron model family, or the simulator default.
func (t Topology) NeuronTypeOrDefault() string {
	if t.NeuronType == "" {
		return constants.DefaultNeuronType
	}
	return t.NeuronType
}

// Weight returns the synaptic weight, or the simulator default.
func (t Topology) Weight() float64 {
	if t.W == nil {
		return constants.DefaultWeight
	}
	return *t.W
}

// WeightNoise returns the synaptic weight standard deviation, or 0.
func (t Topology) WeightNoise() float64 {
	if t.SigmaW == nil {
		return constants.DefaultSigmaW
	}
	return *t.SigmaW
}

// Copies returns how many neurons represent each component.
func (t Topology) Copies() int {
	if t.Multiplicity == nil {
		return constants.DefaultMultiplicity
	}
	return *t.Multiplicity
}
