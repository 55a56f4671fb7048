package domain

import (
	"testing"
)

func TestPriceServiceAdjustments(t *testing.T) {
	cases := []struct {
		name       string
		base       int64
		timeline   Timeline
		subtotal   int64
		tax        int64
		total      int64
		adjustment int
	}{
		{name: "rush adds fifty percent", base: 10000, timeline: TimelineRush, subtotal: 15000, tax: 1500, total: 16500, adjustment: 50},
		{name: "fast adds quarter", base: 10000, timeline: TimelineFast, subtotal: 12500, tax: 1250, total: 13750, adjustment: 25},
		{name: "standard unchanged", base: 10000, timeline: TimelineStandard, subtotal: 10000, tax: 1000, total: 11000, adjustment: 0},
		{name: "flexible discounts ten percent", base: 10000, timeline: TimelineFlexible, subtotal: 9000, tax: 900, total: 9900, adjustment: -10},
		{name: "zero base", base: 0, timeline: TimelineRush, subtotal: 0, tax: 0, total: 0, adjustment: 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote := PriceService(tc.base, tc.timeline)
			if quote.Subtotal != tc.subtotal {
				t.Fatalf("subtotal: expected %d, got %d", tc.subtotal, quote.Subtotal)
			}
			if quote.Tax != tc.tax {
				t.Fatalf("tax: expected %d, got %d", tc.tax, quote.Tax)
			}
			if quote.Total != tc.total {
				t.Fatalf("total: expected %d, got %d", tc.total, quote.Total)
			}
			if quote.TimelineAdjustment != tc.adjustment {
				t.Fatalf("adjustment: expected %d, got %d", tc.adjustment, quote.TimelineAdjustment)
			}
			if quote.FallbackApplied {
				t.Fatalf("fallback should not apply for %s", tc.timeline)
			}
			if quote.Total != quote.Subtotal+quote.Tax {
				t.Fatalf("total %d must equal subtotal %d + tax %d", quote.Total, quote.Subtotal, quote.Tax)
			}
		})
	}
}

func TestPriceServiceTotalInvariantAcrossRange(t *testing.T) {
	timelines := []Timeline{TimelineRush, TimelineFast, TimelineStandard, TimelineFlexible}
	for base := int64(0); base <= 1_000_000; base += 33_333 {
		for _, timeline := range timelines {
			quote := PriceService(base, timeline)
			if quote.Total != quote.Subtotal+quote.Tax {
				t.Fatalf("base %d timeline %s: total %d != subtotal %d + tax %d", base, timeline, quote.Total, quote.Subtotal, quote.Tax)
			}
			if quote.Subtotal < 0 || quote.Tax < 0 || quote.Total < 0 {
				t.Fatalf("base %d timeline %s: negative component in %+v", base, timeline, quote)
			}
		}
	}
}

func TestPriceServiceUnknownTimelineFallsBackToStandard(t *testing.T) {
	quote := PriceService(10000, Timeline("same_day"))
	if !quote.FallbackApplied {
		t.Fatal("expected fallback flag for unknown timeline")
	}
	if quote.TimelineAdjustment != 0 {
		t.Fatalf("expected standard adjustment, got %d", quote.TimelineAdjustment)
	}
	if quote.Subtotal != 10000 || quote.Total != 11000 {
		t.Fatalf("expected standard pricing, got %+v", quote)
	}
}

func TestPriceServiceNegativeBaseClampedToZero(t *testing.T) {
	quote := PriceService(-500, TimelineFast)
	if quote.Subtotal != 0 || quote.Tax != 0 || quote.Total != 0 {
		t.Fatalf("expected zeroed quote, got %+v", quote)
	}
}

func TestDeliveryOffsetDays(t *testing.T) {
	cases := map[Timeline]int{
		TimelineRush:     3,
		TimelineFast:     7,
		TimelineStandard: 21,
		TimelineFlexible: 30,
	}
	for timeline, want := range cases {
		days, known := DeliveryOffsetDays(timeline)
		if !known {
			t.Fatalf("timeline %s should be known", timeline)
		}
		if days != want {
			t.Fatalf("timeline %s: expected %d days, got %d", timeline, want, days)
		}
	}

	days, known := DeliveryOffsetDays(Timeline("whenever"))
	if known {
		t.Fatal("unknown timeline must not report known")
	}
	if days != 21 {
		t.Fatalf("unknown timeline should fall back to standard offset, got %d", days)
	}
}
