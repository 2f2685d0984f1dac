package market

import "testing"

func floatPtr(v float64) *float64 { return &v }

func TestNormalizePrefersClosingValue(t *testing.T) {
	t.Parallel()

	q := RawLineQuote{Market: TypeSpread, Value: floatPtr(-3), Closing: floatPtr(-3.5)}
	v, reject := Normalize(q)
	if reject != RejectNone {
		t.Fatalf("reject = %q", reject)
	}
	if v != -3.5 {
		t.Fatalf("value = %v, want closing -3.5", v)
	}
}

func TestNormalizeSpreadRejectsMoneylineShapedValue(t *testing.T) {
	t.Parallel()

	// An American price (-110) mis-tagged into a spread field.
	_, reject := Normalize(RawLineQuote{Market: TypeSpread, Value: floatPtr(-110)})
	if reject != RejectPriceLeak {
		t.Fatalf("reject = %q, want price_leak", reject)
	}
}

func TestNormalizeSpreadAcceptsLargeButPlausible(t *testing.T) {
	t.Parallel()

	v, reject := Normalize(RawLineQuote{Market: TypeSpread, Value: floatPtr(-52.5)})
	if reject != RejectNone || v != -52.5 {
		t.Fatalf("got (%v, %q)", v, reject)
	}

	_, reject = Normalize(RawLineQuote{Market: TypeSpread, Value: floatPtr(-61)})
	if reject != RejectPriceLeak {
		t.Fatalf("reject = %q, want price_leak for implausible magnitude", reject)
	}
}

func TestNormalizeTotalRejectsNegative(t *testing.T) {
	t.Parallel()

	_, reject := Normalize(RawLineQuote{Market: TypeTotal, Value: floatPtr(-48.5)})
	if reject != RejectNegativeTotal {
		t.Fatalf("reject = %q, want negative_total", reject)
	}
}

func TestNormalizeMoneylineGranularity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value  float64
		reject RejectReason
	}{
		{-110, RejectNone},
		{135, RejectNone},
		{-112, RejectGranularity},
		{-107.5, RejectGranularity},
		{-95, RejectPriceLeak},
	}
	for _, tc := range cases {
		_, reject := Normalize(RawLineQuote{Market: TypeMoneyline, Value: floatPtr(tc.value)})
		if reject != tc.reject {
			t.Fatalf("value %v: reject = %q, want %q", tc.value, reject, tc.reject)
		}
	}
}

func TestNormalizeMissingValue(t *testing.T) {
	t.Parallel()

	_, reject := Normalize(RawLineQuote{Market: TypeSpread})
	if reject != RejectMissingValue {
		t.Fatalf("reject = %q, want missing_value", reject)
	}
}

func TestRoundHalf(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{-3.3: -3.5, -3.2: -3.0, 41.74: 41.5, 41.8: 42}
	for in, want := range cases {
		if got := RoundHalf(in); got != want {
			t.Fatalf("RoundHalf(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestRoundNickel(t *testing.T) {
	t.Parallel()

	if got := RoundNickel(-112); got != -110 {
		t.Fatalf("RoundNickel(-112) = %v, want -110", got)
	}
	if got := RoundNickel(137); got != 135 {
		t.Fatalf("RoundNickel(137) = %v, want 135", got)
	}
}
