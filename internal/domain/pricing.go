package domain

// Timeline price adjustments in whole percent. Rush work costs more,
// flexible scheduling earns a discount.
var timelineAdjustments = map[Timeline]int{
	TimelineRush:     50,
	TimelineFast:     25,
	TimelineStandard: 0,
	TimelineFlexible: -10,
}

// Delivery offsets in days per timeline. Independent of the price table.
var timelineDeliveryDays = map[Timeline]int{
	TimelineRush:     3,
	TimelineFast:     7,
	TimelineStandard: 21,
	TimelineFlexible: 30,
}

// taxRatePercent is the flat tax applied to every order. Fixed policy, not
// configurable per order.
const taxRatePercent = 10

// PriceQuote is the result of pricing a base amount against a timeline.
type PriceQuote struct {
	Subtotal           int64
	Tax                int64
	Total              int64
	TimelineAdjustment int
	// FallbackApplied is set when the timeline was unknown and the standard
	// adjustment was used instead. Callers must log it.
	FallbackApplied bool
}

// PriceService computes subtotal, tax, and total for a base price in minor
// currency units. Unknown timelines fall back to the standard adjustment and
// flag the quote so the caller can warn; the calculator itself never fails.
func PriceService(basePrice int64, timeline Timeline) PriceQuote {
	if basePrice < 0 {
		basePrice = 0
	}

	adjustment, ok := timelineAdjustments[timeline]
	quote := PriceQuote{TimelineAdjustment: adjustment}
	if !ok {
		quote.TimelineAdjustment = timelineAdjustments[TimelineStandard]
		quote.FallbackApplied = true
	}

	quote.Subtotal = applyPercent(basePrice, int64(100+quote.TimelineAdjustment))
	quote.Tax = applyPercent(quote.Subtotal, taxRatePercent)
	quote.Total = quote.Subtotal + quote.Tax
	return quote
}

// DeliveryOffsetDays returns the delivery offset for the timeline, falling
// back to the standard offset for unknown values.
func DeliveryOffsetDays(timeline Timeline) (int, bool) {
	days, ok := timelineDeliveryDays[timeline]
	if !ok {
		return timelineDeliveryDays[TimelineStandard], false
	}
	return days, true
}

// applyPercent computes amount*percent/100 with half-up rounding on the
// minor-unit result.
func applyPercent(amount, percent int64) int64 {
	product := amount * percent
	quotient := product / 100
	if product%100 >= 50 {
		quotient++
	}
	return quotient
}
