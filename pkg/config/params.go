package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// ParameterList is the declared parameter space of one candidate, in
// declaration order. In YAML it is a mapping of name to declaration:
//
//	k: {min: 1, max: 9, step: 2}
//	metric: [l1, l2]
//	seed: 0
type ParameterList []models.ParameterSpec

// UnmarshalYAML decodes the mapping node directly so that declaration
// order survives.
func (l *ParameterList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return models.Errorf(models.ErrInvalidParameterSpec, "line %d: parameters must be a mapping", node.Line)
	}
	seen := make(map[string]bool, len(node.Content)/2)
	out := make(ParameterList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		name := keyNode.Value
		if name == "" {
			return models.Errorf(models.ErrInvalidParameterSpec, "line %d: empty parameter name", keyNode.Line)
		}
		if seen[name] {
			return models.Errorf(models.ErrInvalidParameterSpec, "line %d: duplicate parameter %q", keyNode.Line, name)
		}
		seen[name] = true

		spec, err := decodeParameter(name, valNode)
		if err != nil {
			return err
		}
		out = append(out, spec)
	}
	*l = out
	return nil
}

// UnmarshalYAML decodes a candidate. A malformed parameters block does not
// fail the document; it is kept and returned by ResolveParameters so that
// only this candidate is dropped.
func (c *Candidate) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name           string    `yaml:"name"`
		Kind           string    `yaml:"kind"`
		Image          string    `yaml:"image"`
		Command        []string  `yaml:"command"`
		Required       []string  `yaml:"required"`
		Parameters     yaml.Node `yaml:"parameters"`
		ParametersFile string    `yaml:"parameters_file"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = Candidate{
		Name:           raw.Name,
		Kind:           raw.Kind,
		Image:          raw.Image,
		Command:        raw.Command,
		Required:       raw.Required,
		ParametersFile: raw.ParametersFile,
	}
	if raw.Parameters.Kind == 0 || raw.Parameters.Tag == "!!null" {
		return nil
	}
	if err := raw.Parameters.Decode(&c.Parameters); err != nil {
		c.Parameters = nil
		c.paramErr = models.WrapError(models.ErrInvalidParameterSpec, err)
	}
	return nil
}

func decodeParameter(name string, node *yaml.Node) (models.ParameterSpec, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		v, err := scalarValue(node)
		if err != nil {
			return models.ParameterSpec{}, paramError(name, node, err)
		}
		return models.FixedParam(name, v), nil

	case yaml.SequenceNode:
		values, err := sequenceValues(node)
		if err != nil {
			return models.ParameterSpec{}, paramError(name, node, err)
		}
		return models.SetParam(name, values...), nil

	case yaml.MappingNode:
		fields := make(map[string]*yaml.Node, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			fields[node.Content[i].Value] = node.Content[i+1]
		}
		switch {
		case fields["values"] != nil:
			if len(fields) != 1 {
				return models.ParameterSpec{}, paramError(name, node, fmt.Errorf("'values' cannot be combined with other keys"))
			}
			if fields["values"].Kind != yaml.SequenceNode {
				return models.ParameterSpec{}, paramError(name, node, fmt.Errorf("'values' must be a list"))
			}
			values, err := sequenceValues(fields["values"])
			if err != nil {
				return models.ParameterSpec{}, paramError(name, node, err)
			}
			return models.SetParam(name, values...), nil

		case fields["value"] != nil:
			if len(fields) != 1 {
				return models.ParameterSpec{}, paramError(name, node, fmt.Errorf("'value' cannot be combined with other keys"))
			}
			v, err := scalarValue(fields["value"])
			if err != nil {
				return models.ParameterSpec{}, paramError(name, node, err)
			}
			return models.FixedParam(name, v), nil

		default:
			var bounds [3]models.Value
			for i, key := range []string{"min", "max", "step"} {
				n := fields[key]
				if n == nil {
					return models.ParameterSpec{}, paramError(name, node, fmt.Errorf("range requires min, max and step, missing %q", key))
				}
				v, err := scalarValue(n)
				if err != nil {
					return models.ParameterSpec{}, paramError(name, node, err)
				}
				bounds[i] = v
			}
			if len(fields) != 3 {
				return models.ParameterSpec{}, paramError(name, node, fmt.Errorf("unexpected keys in range declaration"))
			}
			return models.RangeParam(name, bounds[0], bounds[1], bounds[2]), nil
		}
	}
	return models.ParameterSpec{}, paramError(name, node, fmt.Errorf("unsupported declaration"))
}

func paramError(name string, node *yaml.Node, err error) error {
	return models.Errorf(models.ErrInvalidParameterSpec, "line %d: parameter %q: %v", node.Line, name, err)
}

func sequenceValues(node *yaml.Node) ([]models.Value, error) {
	values := make([]models.Value, 0, len(node.Content))
	for _, item := range node.Content {
		v, err := scalarValue(item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// scalarValue converts a YAML scalar using its resolved tag, so quoted
// numbers stay strings.
func scalarValue(node *yaml.Node) (models.Value, error) {
	if node.Kind != yaml.ScalarNode {
		return models.Value{}, fmt.Errorf("expected a scalar value")
	}
	switch node.ShortTag() {
	case "!!int":
		i, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return models.Value{}, fmt.Errorf("invalid int %q", node.Value)
		}
		return models.IntValue(i), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return models.Value{}, fmt.Errorf("invalid float %q", node.Value)
		}
		return models.FloatValue(f), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return models.Value{}, fmt.Errorf("invalid bool %q", node.Value)
		}
		return models.BoolValue(b), nil
	case "!!str":
		return models.StringValue(node.Value), nil
	case "!!null":
		return models.Value{}, fmt.Errorf("value cannot be null")
	default:
		return models.Value{}, fmt.Errorf("unsupported value tag %s", node.ShortTag())
	}
}

// ParseParameterText reads the legacy whitespace-separated parameter
// format. Each non-empty line is either "name value" or
// "name start end step". Text after '#' is ignored.
func ParseParameterText(r io.Reader) (ParameterList, error) {
	var out ParameterList
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if seen[name] {
			return nil, models.Errorf(models.ErrInvalidParameterSpec, "line %d: duplicate parameter %q", lineNo, name)
		}
		seen[name] = true

		switch len(fields) {
		case 2:
			out = append(out, models.FixedParam(name, models.ParseValue(fields[1])))
		case 4:
			start := models.ParseValue(fields[1])
			end := models.ParseValue(fields[2])
			step := models.ParseValue(fields[3])
			if !start.IsNumeric() || start.Kind() != end.Kind() || end.Kind() != step.Kind() {
				return nil, models.Errorf(models.ErrInvalidParameterSpec,
					"line %d: invalid parameter range for %s: <%s, %s, %s>", lineNo, name, start, end, step)
			}
			out = append(out, models.RangeParam(name, start, end, step))
		default:
			return nil, models.Errorf(models.ErrInvalidParameterSpec,
				"line %d: expected 2 or 4 fields, got %d", lineNo, len(fields))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read parameters: %w", err)
	}
	return out, nil
}

// Names returns the declared parameter names in order
func (l ParameterList) Names() []string {
	names := make([]string, len(l))
	for i, p := range l {
		names[i] = p.Name
	}
	return names
}
