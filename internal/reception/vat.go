package reception

import "github.com/shopspring/decimal"

// DefaultVATPercent applies when a line carries no VAT rate.
const DefaultVATPercent = 21

// VatBreakdown is the tax decomposition of a tax-inclusive line amount.
// BaseImponible + CuotaIva == ImporteLiquido exactly: the quota is computed
// as the remainder after rounding the base, so no cent is ever lost.
type VatBreakdown struct {
	BaseImponible  float64
	CuotaIva       float64
	ImporteLiquido float64
}

// VatAllocator back-computes tax base and tax amount from a tax-inclusive
// unit price. Amounts are fixed-point (2 decimals) internally; missing price
// or quantity yields a zero breakdown, missing rate falls back to DefaultRate.
type VatAllocator struct {
	DefaultRate float64
}

// Allocate decomposes precio*unidades into base, quota and gross for the
// given VAT percentage.
func (a VatAllocator) Allocate(precio, unidades, porcentajeIva float64) VatBreakdown {
	rate := porcentajeIva
	if rate <= 0 {
		rate = a.DefaultRate
	}
	if rate <= 0 {
		rate = DefaultVATPercent
	}

	gross := decimal.NewFromFloat(precio).Mul(decimal.NewFromFloat(unidades)).Round(2)
	divisor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(rate).Div(decimal.NewFromInt(100)))
	base := gross.Div(divisor).Round(2)
	quota := gross.Sub(base)

	bd := VatBreakdown{}
	bd.BaseImponible, _ = base.Float64()
	bd.CuotaIva, _ = quota.Float64()
	bd.ImporteLiquido, _ = gross.Float64()
	return bd
}
