// Package paramspace expands declared hyper-parameter specifications into
// the deterministic cross-product of concrete configurations.
package paramspace

import (
	"fmt"
	"iter"
	"math"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
	"github.com/GoSim-25-26J-441/bench-core/pkg/utils"
)

// MaxConfigurations bounds the size of one expanded space
const MaxConfigurations = 1 << 20

// floatEpsilon absorbs representation error when counting float range steps
const floatEpsilon = 1e-9

// floatDecimals is the least precision float range values are rounded to
const floatDecimals = 12

// stepDigits is how many decimal digits below the step's leading digit a
// float range value keeps
const stepDigits = 3

type axis struct {
	name   string
	values []models.Value
}

// Space is the expanded parameter space of one candidate. Configuration i
// is derived from the specs alone, so a Space can be iterated any number of
// times and At(i) always returns the same configuration.
type Space struct {
	axes []axis
	size int
}

// Expand validates specs and builds their cross-product. Specs keep their
// declared order and the last spec varies fastest. No specs yields a space
// holding the single empty configuration.
func Expand(specs []models.ParameterSpec) (*Space, error) {
	seen := make(map[string]bool, len(specs))
	axes := make([]axis, 0, len(specs))
	size := 1
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, models.Errorf(models.ErrInvalidParameterSpec, "parameter name cannot be empty")
		}
		if seen[spec.Name] {
			return nil, models.Errorf(models.ErrInvalidParameterSpec, "duplicate parameter %q", spec.Name)
		}
		seen[spec.Name] = true

		values, err := Values(spec)
		if err != nil {
			return nil, err
		}
		if size > MaxConfigurations/len(values) {
			return nil, models.Errorf(models.ErrInvalidParameterSpec,
				"parameter space exceeds %d configurations at %q", MaxConfigurations, spec.Name)
		}
		size *= len(values)
		axes = append(axes, axis{name: spec.Name, values: values})
	}
	return &Space{axes: axes, size: size}, nil
}

// Len returns the number of configurations
func (s *Space) Len() int { return s.size }

// Names returns the parameter names in declared order
func (s *Space) Names() []string {
	names := make([]string, len(s.axes))
	for i, a := range s.axes {
		names[i] = a.name
	}
	return names
}

// At returns configuration i. It panics if i is out of range.
func (s *Space) At(i int) models.Configuration {
	if i < 0 || i >= s.size {
		panic(fmt.Sprintf("paramspace: index %d out of range [0,%d)", i, s.size))
	}
	params := make([]models.Param, len(s.axes))
	for a := len(s.axes) - 1; a >= 0; a-- {
		n := len(s.axes[a].values)
		params[a] = models.Param{Name: s.axes[a].name, Value: s.axes[a].values[i%n]}
		i /= n
	}
	return models.ConfigurationFromParams(params...)
}

// All yields every configuration with its index
func (s *Space) All() iter.Seq2[int, models.Configuration] {
	return func(yield func(int, models.Configuration) bool) {
		for i := 0; i < s.size; i++ {
			if !yield(i, s.At(i)) {
				return
			}
		}
	}
}

// Configurations materializes the whole space
func (s *Space) Configurations() []models.Configuration {
	out := make([]models.Configuration, 0, s.size)
	for _, c := range s.All() {
		out = append(out, c)
	}
	return out
}

// Values expands a single spec into its ordered value set
func Values(spec models.ParameterSpec) ([]models.Value, error) {
	switch spec.Kind {
	case models.ParameterFixed:
		if !spec.Value.IsValid() {
			return nil, invalid(spec, "fixed parameter has no value")
		}
		return []models.Value{spec.Value}, nil
	case models.ParameterSet:
		return setValues(spec)
	case models.ParameterRange:
		return rangeValues(spec)
	default:
		return nil, invalid(spec, fmt.Sprintf("unknown kind %q", spec.Kind))
	}
}

func invalid(spec models.ParameterSpec, msg string) error {
	return models.Errorf(models.ErrInvalidParameterSpec, "parameter %q: %s", spec.Name, msg)
}

func setValues(spec models.ParameterSpec) ([]models.Value, error) {
	if len(spec.Values) == 0 {
		return nil, invalid(spec, "empty value set")
	}
	kind := spec.Values[0].Kind()
	promote := false
	for _, v := range spec.Values {
		if !v.IsValid() {
			return nil, invalid(spec, "set contains an invalid value")
		}
		if v.Kind() == kind {
			continue
		}
		if v.IsNumeric() && spec.Values[0].IsNumeric() {
			promote = true
			continue
		}
		return nil, invalid(spec, fmt.Sprintf("mixed value types %s and %s", kind, v.Kind()))
	}

	out := make([]models.Value, 0, len(spec.Values))
	seen := make(map[string]bool, len(spec.Values))
	for _, v := range spec.Values {
		if promote {
			f, _ := v.AsFloat()
			v = models.FloatValue(f)
		}
		if seen[v.String()] {
			return nil, invalid(spec, fmt.Sprintf("duplicate value %s", v))
		}
		seen[v.String()] = true
		out = append(out, v)
	}
	return out, nil
}

func rangeValues(spec models.ParameterSpec) ([]models.Value, error) {
	for _, v := range []models.Value{spec.Min, spec.Max, spec.Step} {
		if !v.IsNumeric() {
			return nil, invalid(spec, "range bounds and step must be numeric")
		}
	}

	if spec.Min.Kind() == models.KindInt && spec.Max.Kind() == models.KindInt && spec.Step.Kind() == models.KindInt {
		lo, _ := spec.Min.AsInt()
		hi, _ := spec.Max.AsInt()
		step, _ := spec.Step.AsInt()
		if lo > hi {
			return nil, invalid(spec, fmt.Sprintf("min %d > max %d", lo, hi))
		}
		if step <= 0 {
			return nil, invalid(spec, fmt.Sprintf("step %d must be positive", step))
		}
		// the span of a valid range can exceed MaxInt64
		steps := (uint64(hi) - uint64(lo)) / uint64(step)
		if steps >= MaxConfigurations {
			return nil, invalid(spec, fmt.Sprintf("range has %d steps", steps))
		}
		n := steps + 1
		out := make([]models.Value, n)
		for i := uint64(0); i < n; i++ {
			out[i] = models.IntValue(int64(uint64(lo) + i*uint64(step)))
		}
		return out, nil
	}

	lo, _ := spec.Min.AsFloat()
	hi, _ := spec.Max.AsFloat()
	step, _ := spec.Step.AsFloat()
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsNaN(step) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || math.IsInf(step, 0) {
		return nil, invalid(spec, "range bounds and step must be finite")
	}
	if lo > hi {
		return nil, invalid(spec, fmt.Sprintf("min %g > max %g", lo, hi))
	}
	if step <= 0 {
		return nil, invalid(spec, fmt.Sprintf("step %g must be positive", step))
	}
	steps := math.Floor((hi-lo)/step + floatEpsilon)
	if steps+1 > MaxConfigurations {
		return nil, invalid(spec, fmt.Sprintf("range has %.0f values", steps+1))
	}
	n := int(steps) + 1
	decimals := floatDecimals
	if d := int(math.Ceil(-math.Log10(step))) + stepDigits; d > decimals {
		decimals = d
	}
	out := make([]models.Value, n)
	prev := math.Inf(-1)
	for i := 0; i < n; i++ {
		v := math.Min(roundTo(lo+float64(i)*step, decimals), hi)
		if v <= prev {
			return nil, invalid(spec, fmt.Sprintf("step %g is below the precision of %g", step, v))
		}
		out[i] = models.FloatValue(v)
		prev = v
	}
	return out, nil
}

// roundTo rounds v to decimals places, leaving v as is where scaling it
// would overflow
func roundTo(v float64, decimals int) float64 {
	r := utils.Round(v, decimals)
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return v
	}
	return r
}
