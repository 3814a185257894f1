package totals

import (
	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/domain"
)

// Calculations aggregates order lines into the figures the register shows.
// Every field is rounded to 2 decimal places.
type Calculations struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DescuentoTotal decimal.Decimal `json:"descuento_total"`
	ImpuestoTotal  decimal.Decimal `json:"impuesto_total"`
	Total          decimal.Decimal `json:"total"`
	CantidadItems  decimal.Decimal `json:"cantidad_items"`
	ISCTotal       decimal.Decimal `json:"isc_total"`
	ADVTotal       decimal.Decimal `json:"adv_total"`
	NetAmount      decimal.Decimal `json:"net_amount"`
}

var hundred = decimal.NewFromInt(100)

// Compute aggregates the given lines. Accumulation runs at full precision and
// each output is rounded only at the end; rounding per line would compound
// into a different (and generally larger) cumulative error.
//
// When includeLineCalcs is false only subtotal and item count are accumulated,
// matching callers that receive pre-aggregated discount and tax figures.
func Compute(details []domain.OrderLine, includeLineCalcs bool) Calculations {
	if len(details) == 0 {
		return Calculations{}
	}

	subtotal := decimal.Zero
	descuento := decimal.Zero
	impuesto := decimal.Zero
	isc := decimal.Zero
	adv := decimal.Zero
	cantidadItems := decimal.Zero

	for _, line := range details {
		factor := line.Factor
		if factor.IsZero() {
			factor = decimal.NewFromInt(1)
		}
		lineSubtotal := line.Cantidad.Mul(factor).Mul(line.Precio)
		subtotal = subtotal.Add(lineSubtotal)
		cantidadItems = cantidadItems.Add(line.Cantidad)

		if !includeLineCalcs {
			continue
		}

		lineDiscount := lineSubtotal.Mul(line.PorcientoDescuento).Div(hundred)
		taxableAmount := lineSubtotal.Sub(lineDiscount)
		lineTax := taxableAmount.Mul(line.PorcientoImpuesto).Div(hundred)

		descuento = descuento.Add(lineDiscount)
		impuesto = impuesto.Add(lineTax)
		isc = isc.Add(line.ISC)
		adv = adv.Add(line.ADV)
	}

	netAmount := subtotal.Sub(descuento)
	total := netAmount.Add(impuesto).Add(isc).Add(adv)

	return Calculations{
		Subtotal:       subtotal.Round(2),
		DescuentoTotal: descuento.Round(2),
		ImpuestoTotal:  impuesto.Round(2),
		Total:          total.Round(2),
		CantidadItems:  cantidadItems.Round(2),
		ISCTotal:       isc.Round(2),
		ADVTotal:       adv.Round(2),
		NetAmount:      netAmount.Round(2),
	}
}
