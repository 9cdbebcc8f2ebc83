package oracle

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Price
		want Price
	}{
		{"already normal", Price{Mantissa: 1000, Exponent: -3}, Price{Mantissa: 1000, Exponent: -3}},
		{"one digit over", Price{Mantissa: MaxMantissa + 1, Exponent: -9}, Price{Mantissa: (MaxMantissa + 1) / 10, Exponent: -8}},
		{"large mantissa", Price{Mantissa: 123_456_789_012, Exponent: -9}, Price{Mantissa: 123_456_789, Exponent: -6}},
	}
	for _, tc := range cases {
		got, err := tc.in.Normalize()
		if err != nil || got != tc.want {
			t.Errorf("%s: Normalize() = %+v, %v, want %+v", tc.name, got, err, tc.want)
		}
	}
}

func TestScaleToExponent(t *testing.T) {
	p := Price{Mantissa: 123_456, Exponent: -6}

	coarser, err := p.ScaleToExponent(-3)
	if err != nil || coarser.Mantissa != 123 || coarser.Exponent != -3 {
		t.Errorf("scale to -3 = %+v, %v", coarser, err)
	}

	finer, err := p.ScaleToExponent(-8)
	if err != nil || finer.Mantissa != 12_345_600 || finer.Exponent != -8 {
		t.Errorf("scale to -8 = %+v, %v", finer, err)
	}

	same, err := p.ScaleToExponent(-6)
	if err != nil || same != p {
		t.Errorf("scale to same = %+v, %v", same, err)
	}
}

func TestMulDivPrices(t *testing.T) {
	a := Price{Mantissa: 2000, Exponent: -3} // 2.0
	b := Price{Mantissa: 1000, Exponent: -3} // 1.0

	prod, err := a.Mul(b)
	if err != nil || prod.Mantissa != 2_000_000 || prod.Exponent != -6 {
		t.Errorf("Mul = %+v, %v", prod, err)
	}

	quot, err := a.Div(b)
	if err != nil || quot.Mantissa != 2*PriceScale || quot.Exponent != ExponentScale {
		t.Errorf("Div = %+v, %v", quot, err)
	}

	if _, err := a.Div(Price{Mantissa: 0, Exponent: 0}); err == nil {
		t.Error("Div by zero price should fail")
	}
}

func TestCmpAcrossExponents(t *testing.T) {
	a := Price{Mantissa: 1000, Exponent: -3} // 1.0
	b := Price{Mantissa: 1_000_000, Exponent: -6}

	got, err := a.Cmp(b)
	if err != nil || got != 0 {
		t.Errorf("Cmp equal values = %d, %v", got, err)
	}

	c := Price{Mantissa: 999_999, Exponent: -6}
	got, err = a.Cmp(c)
	if err != nil || got != 1 {
		t.Errorf("Cmp greater = %d, %v", got, err)
	}
	got, err = c.Cmp(a)
	if err != nil || got != -1 {
		t.Errorf("Cmp less = %d, %v", got, err)
	}
}

func testFeedID() [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = byte(i + 1)
	}
	return id
}

func testSnapshot() *Snapshot {
	var auth [32]byte
	auth[0] = 0xAA
	return &Snapshot{
		FeedID:          testFeedID(),
		Authority:       auth,
		Price:           1_000_000,
		Conf:            100,
		EMA:             990_000,
		Exponent:        -6,
		PublishTime:     1000,
		UpdateCount:     5,
		MaxDeviationBps: 500,
	}
}

func TestSecureUpdate(t *testing.T) {
	s := testSnapshot()

	var wrong [32]byte
	wrong[0] = 0xBB
	if err := s.SecureUpdate(wrong, 1_010_000, 100, 990_000, 1060); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("wrong authority err = %v", err)
	}

	if err := s.SecureUpdate(s.Authority, 0, 100, 990_000, 1060); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price err = %v", err)
	}

	if err := s.SecureUpdate(s.Authority, 1_010_000, 100, 990_000, 1000); !errors.Is(err, ErrStalePrice) {
		t.Errorf("non-monotonic publish time err = %v", err)
	}

	// 6% move against a 5% bound.
	if err := s.SecureUpdate(s.Authority, 1_060_000, 100, 990_000, 1060); !errors.Is(err, ErrDeviationTooHigh) {
		t.Errorf("excess deviation err = %v", err)
	}

	if err := s.SecureUpdate(s.Authority, 1_040_000, 120, 995_000, 1060); err != nil {
		t.Fatalf("valid update err = %v", err)
	}
	if s.Price != 1_040_000 || s.UpdateCount != 6 || s.PublishTime != 1060 {
		t.Errorf("snapshot after update = %+v", s)
	}
}

func TestGetPriceCustom(t *testing.T) {
	cfg := SourceConfig{
		FeedID:           testFeedID(),
		Kind:             SourceCustom,
		MaxPriceErrorBps: 100,
		MaxPriceAgeSec:   60,
	}
	s := testSnapshot()

	p, err := GetPrice(cfg, Input{Snapshot: s}, 1030, false)
	if err != nil || p.Mantissa != 1_000_000 || p.Exponent != -6 {
		t.Fatalf("custom price = %+v, %v", p, err)
	}

	ema, err := GetPrice(cfg, Input{Snapshot: s}, 1030, true)
	if err != nil || ema.Mantissa != 990_000 {
		t.Errorf("custom ema = %+v, %v", ema, err)
	}

	if _, err := GetPrice(cfg, Input{Snapshot: s}, 1061, false); !errors.Is(err, ErrStalePrice) {
		t.Errorf("stale snapshot err = %v", err)
	}

	// Valid at the configured age means valid at any younger age.
	for _, now := range []int64{1000, 1010, 1060} {
		if _, err := GetPrice(cfg, Input{Snapshot: s}, now, false); err != nil {
			t.Errorf("age %d should be fresh: %v", now-s.PublishTime, err)
		}
	}

	wide := testSnapshot()
	wide.Conf = 50_000 // 5% confidence against a 1% bound
	if _, err := GetPrice(cfg, Input{Snapshot: wide}, 1030, false); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("wide confidence err = %v", err)
	}
}

func TestGetPriceExternal(t *testing.T) {
	cfg := SourceConfig{
		FeedID:           testFeedID(),
		Kind:             SourceExternal,
		MaxPriceErrorBps: 200,
		MaxPriceAgeSec:   30,
	}
	feed := &FeedRecord{FeedID: testFeedID(), Price: 2_500_000, Conf: 100, Exponent: -6, PublishTime: 1000}
	twap := &TwapRecord{Price: 2_480_000, Exponent: -6, PublishTime: 1000}

	p, err := GetPrice(cfg, Input{Feed: feed, Twap: twap}, 1010, false)
	if err != nil || p.Mantissa != 2_500_000 {
		t.Fatalf("external price = %+v, %v", p, err)
	}

	ema, err := GetPrice(cfg, Input{Feed: feed, Twap: twap}, 1010, true)
	if err != nil || ema.Mantissa != 2_480_000 {
		t.Errorf("external ema = %+v, %v", ema, err)
	}

	if _, err := GetPrice(cfg, Input{Feed: feed}, 1010, true); !errors.Is(err, ErrMissingTwap) {
		t.Errorf("missing twap err = %v", err)
	}

	if _, err := GetPrice(cfg, Input{Feed: feed, Twap: twap}, 1031, false); !errors.Is(err, ErrStalePrice) {
		t.Errorf("per-source stale err = %v", err)
	}

	// The hard ceiling applies even when the per-source window is huge.
	loose := cfg
	loose.MaxPriceAgeSec = 100_000
	if _, err := GetPrice(loose, Input{Feed: feed, Twap: twap}, 1000+MaxFeedAgeSec+1, false); !errors.Is(err, ErrStalePrice) {
		t.Errorf("hard ceiling err = %v", err)
	}

	other := &FeedRecord{FeedID: [32]byte{0xFF}, Price: 1, Exponent: -6, PublishTime: 1000}
	if _, err := GetPrice(cfg, Input{Feed: other}, 1010, false); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("feed id mismatch err = %v", err)
	}
}

func TestGetPriceConsensus(t *testing.T) {
	cfg := SourceConfig{
		FeedID:                testFeedID(),
		Kind:                  SourceConsensus,
		MaxPriceErrorBps:      200,
		MaxPriceAgeSec:        60,
		MaxSourceDeviationBps: 100,
	}
	primary := &FeedRecord{FeedID: testFeedID(), Price: 1_000_000, Conf: 50, Exponent: -6, PublishTime: 1000}
	agreeing := &FeedRecord{FeedID: [32]byte{0x02}, Price: 1_005_000, Exponent: -6, PublishTime: 1000}
	divergent := &FeedRecord{FeedID: [32]byte{0x03}, Price: 1_020_000, Exponent: -6, PublishTime: 1000}

	// Primary price is returned even though the secondary differs slightly.
	p, err := GetPrice(cfg, Input{Feed: primary, Secondary: agreeing}, 1010, false)
	if err != nil || p.Mantissa != 1_000_000 {
		t.Fatalf("consensus price = %+v, %v", p, err)
	}

	if _, err := GetPrice(cfg, Input{Feed: primary, Secondary: divergent}, 1010, false); !errors.Is(err, ErrDeviationTooHigh) {
		t.Errorf("divergent secondary err = %v", err)
	}

	if _, err := GetPrice(cfg, Input{Feed: primary, Secondary: agreeing, Tertiary: divergent}, 1010, false); !errors.Is(err, ErrDeviationTooHigh) {
		t.Errorf("divergent tertiary err = %v", err)
	}

	if _, err := GetPrice(cfg, Input{Feed: primary}, 1010, false); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("missing secondary err = %v", err)
	}

	if _, err := GetPrice(SourceConfig{Kind: 99}, Input{}, 1010, false); !errors.Is(err, ErrUnsupportedSource) {
		t.Errorf("unknown kind err = %v", err)
	}
}
