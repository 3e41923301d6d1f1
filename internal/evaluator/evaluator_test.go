package evaluator

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func item(last string, min, max *decimal.Decimal) models.TrackedItem {
	return models.TrackedItem{
		ID:             "item-1",
		SourceURL:      "https://www.amazon.in/dp/B000000001",
		NotifyTarget:   "buyer@example.com",
		LastKnownPrice: dec(last),
		MinThreshold:   min,
		MaxThreshold:   max,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		item      models.TrackedItem
		newPrice  string
		wantKinds []Kind
		wantBound []Bound
	}{
		{"unchanged", item("150.00", nil, nil), "150", []Kind{NoChange}, []Bound{""}},
		{"unchanged beyond precision", item("150.00", nil, nil), "150.001", []Kind{NoChange}, []Bound{""}},
		{"changed without thresholds", item("150", nil, nil), "149.99", []Kind{PriceChanged}, []Bound{""}},
		{"changed inside band", item("150", ptr("100"), ptr("200")), "160", []Kind{PriceChanged}, []Bound{""}},
		{"below min", item("150", ptr("100"), nil), "99", []Kind{ThresholdCrossed}, []Bound{BoundMin}},
		{"at min is inclusive", item("150", ptr("100"), nil), "100", []Kind{ThresholdCrossed}, []Bound{BoundMin}},
		{"above max", item("150", nil, ptr("200")), "250", []Kind{ThresholdCrossed}, []Bound{BoundMax}},
		{"at max is inclusive", item("150", nil, ptr("200")), "200.00", []Kind{ThresholdCrossed}, []Bound{BoundMax}},
		{"unchanged while below min", item("90", ptr("100"), nil), "90", []Kind{NoChange}, []Bound{""}},
		{"both crossed reports min then max", item("150", ptr("200"), ptr("100")), "150.50",
			[]Kind{ThresholdCrossed, ThresholdCrossed}, []Bound{BoundMin, BoundMax}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.item, dec(tt.newPrice))
			if len(got) != len(tt.wantKinds) {
				t.Fatalf("Evaluate() returned %d decisions, want %d: %v", len(got), len(tt.wantKinds), got)
			}
			for i, d := range got {
				if d.Kind != tt.wantKinds[i] {
					t.Errorf("decision[%d].Kind = %s, want %s", i, d.Kind, tt.wantKinds[i])
				}
				if d.Bound != tt.wantBound[i] {
					t.Errorf("decision[%d].Bound = %q, want %q", i, d.Bound, tt.wantBound[i])
				}
			}
		})
	}
}

func TestEvaluate_ThresholdCarriesValues(t *testing.T) {
	got := Evaluate(item("150", ptr("100"), nil), dec("99.5"))

	d := got[0]
	if !d.Old.Equal(dec("150")) {
		t.Errorf("Old = %s, want 150", d.Old)
	}
	if !d.New.Equal(dec("99.50")) {
		t.Errorf("New = %s, want 99.50", d.New)
	}
	if !d.Threshold.Equal(dec("100")) {
		t.Errorf("Threshold = %s, want 100", d.Threshold)
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	it := item("150", ptr("100"), ptr("200"))
	before := it

	first := Evaluate(it, dec("99"))
	second := Evaluate(it, dec("99"))

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Evaluate() not deterministic: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(it, before) {
		t.Error("Evaluate() mutated its input")
	}
}

// Each price is evaluated against the price stored after the previous step.
func TestEvaluate_PriceSequence(t *testing.T) {
	it := item("150", ptr("100"), ptr("200"))

	sequence := []string{"150", "99", "250", "99"}
	want := []struct {
		kind  Kind
		bound Bound
	}{
		{NoChange, ""},
		{ThresholdCrossed, BoundMin},
		{ThresholdCrossed, BoundMax},
		{ThresholdCrossed, BoundMin},
	}

	for i, p := range sequence {
		got := Evaluate(it, dec(p))
		if len(got) != 1 {
			t.Fatalf("step %d: got %d decisions, want 1", i, len(got))
		}
		if got[0].Kind != want[i].kind || got[0].Bound != want[i].bound {
			t.Errorf("step %d: got %s, want %s/%s", i, got[0], want[i].kind, want[i].bound)
		}
		it.LastKnownPrice = dec(p)
	}
}

func TestDecision_Notifiable(t *testing.T) {
	if (Decision{Kind: NoChange}).Notifiable() {
		t.Error("NoChange should not be notifiable")
	}
	if !(Decision{Kind: PriceChanged}).Notifiable() {
		t.Error("PriceChanged should be notifiable")
	}
}
