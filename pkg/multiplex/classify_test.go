package multiplex

import (
	"testing"

	"github.com/matzehuels/nlink/pkg/rules"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   Evidence
		want Mechanism
	}{
		{
			name: "loses edge",
			ev:   Evidence{Degree: 2, FromN: 2, ToN: 3, FromSucc: 5, ToSucc: rules.Halt},
			want: DegreeShift,
		},
		{
			name: "nth link differs",
			ev:   Evidence{Degree: 4, FromN: 1, ToN: 2, FromSucc: 5, ToSucc: 6},
			want: DegreeShift,
		},
		{
			name: "same successor, successor moved",
			ev: Evidence{
				Degree: 4, FromN: 1, ToN: 2, FromSucc: 5, ToSucc: 5,
				FromSuccTerminal: 0, ToSuccTerminal: 1,
			},
			want: Indirect,
		},
		{
			name: "same successor, successor unknown",
			ev: Evidence{
				Degree: 4, FromN: 1, ToN: 2, FromSucc: 5, ToSucc: 5,
				FromSuccTerminal: Unassigned, ToSuccTerminal: 1,
			},
			want: Unclassified,
		},
		{
			name: "halts at both",
			ev:   Evidence{Degree: 0, FromN: 1, ToN: 2, FromSucc: rules.Halt, ToSucc: rules.Halt},
			want: Unclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(DefaultClassifiers, tt.ev); got != tt.want {
				t.Errorf("classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifierOrder(t *testing.T) {
	always := func(Evidence) bool { return true }
	cs := []Classifier{{Mechanism: "first", Match: always}, {Mechanism: "second", Match: always}}
	if got := classify(cs, Evidence{}); got != "first" {
		t.Errorf("classify() = %s, want first match", got)
	}
}
