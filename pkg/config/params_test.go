package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

func TestParametersYAMLPreservesOrder(t *testing.T) {
	list, err := ParseParametersYAML([]byte(`
zeta: 1
alpha: {min: 0.1, max: 0.5, step: 0.1}
metric: [l1, l2]
mode: {values: ["1", "2"]}
fixed: {value: true}
`))
	if err != nil {
		t.Fatalf("ParseParametersYAML failed: %v", err)
	}

	if got := strings.Join(list.Names(), ","); got != "zeta,alpha,metric,mode,fixed" {
		t.Fatalf("unexpected order %s", got)
	}

	tests := []struct {
		idx  int
		kind models.ParameterKind
	}{
		{0, models.ParameterFixed},
		{1, models.ParameterRange},
		{2, models.ParameterSet},
		{3, models.ParameterSet},
		{4, models.ParameterFixed},
	}
	for _, tt := range tests {
		if list[tt.idx].Kind != tt.kind {
			t.Errorf("%s: kind = %s, expected %s", list[tt.idx].Name, list[tt.idx].Kind, tt.kind)
		}
	}

	if !list[0].Value.Equal(models.IntValue(1)) {
		t.Errorf("expected int 1, got %v", list[0].Value)
	}
	if list[1].Min.Kind() != models.KindFloat {
		t.Errorf("expected float range, got %s", list[1].Min.Kind())
	}
	// quoted numbers stay strings
	if list[3].Values[0].Kind() != models.KindString {
		t.Errorf("expected quoted value to stay a string, got %s", list[3].Values[0].Kind())
	}
	if !list[4].Value.Equal(models.BoolValue(true)) {
		t.Errorf("expected bool true, got %v", list[4].Value)
	}
}

func TestParametersYAMLInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not a mapping", "- a\n- b\n"},
		{"duplicate", "k: 1\nk: 2\n"},
		{"missing step", "k: {min: 1, max: 3}\n"},
		{"extra range key", "k: {min: 1, max: 3, step: 1, scale: log}\n"},
		{"values not list", "k: {values: 3}\n"},
		{"values with extras", "k: {values: [1], min: 0}\n"},
		{"null", "k: ~\n"},
		{"nested list", "k: [[1, 2]]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParametersYAML([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.name != "duplicate" && tt.name != "not a mapping" && !errors.Is(err, models.ErrInvalidParameterSpec) {
				t.Errorf("expected ErrInvalidParameterSpec, got %v", err)
			}
		})
	}
}

func TestParseParameterText(t *testing.T) {
	list, err := ParseParameterText(strings.NewReader(`
# knn
k 1 10 1
metric euclidean   # inline comment
trainset_size 0.5 1. 0.25
`))
	if err != nil {
		t.Fatalf("ParseParameterText failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(list))
	}
	if list[0].Kind != models.ParameterRange || !list[0].Max.Equal(models.IntValue(10)) {
		t.Errorf("unexpected k spec %+v", list[0])
	}
	if list[1].Kind != models.ParameterFixed || !list[1].Value.Equal(models.StringValue("euclidean")) {
		t.Errorf("unexpected metric spec %+v", list[1])
	}
	if list[2].Min.Kind() != models.KindFloat {
		t.Errorf("expected float range, got %s", list[2].Min.Kind())
	}
}

func TestParseParameterTextInvalid(t *testing.T) {
	tests := []string{
		"k 1 10\n",
		"k a b c\n",
		"k 1 10. 1\n",
		"k 1\nk 2\n",
		"k\n",
	}

	for _, text := range tests {
		_, err := ParseParameterText(strings.NewReader(text))
		if !errors.Is(err, models.ErrInvalidParameterSpec) {
			t.Errorf("ParseParameterText(%q): expected ErrInvalidParameterSpec, got %v", text, err)
		}
	}
}
