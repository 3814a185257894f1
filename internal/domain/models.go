package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/xid"
)

// ProductoSnapshot is a denormalized copy of a catalog product, owned by the
// record that embeds it. Later catalog edits never change historical carts.
type ProductoSnapshot struct {
	Codigo            string          `json:"codigo"`
	Nombre            string          `json:"nombre"`
	Unidad            string          `json:"unidad,omitempty"`
	Factor            decimal.Decimal `json:"factor"`
	Precio            decimal.Decimal `json:"precio"`
	PorcientoImpuesto decimal.Decimal `json:"porciento_impuesto"`
	ISC               decimal.Decimal `json:"isc"`
	ADV               decimal.Decimal `json:"adv"`
}

// ClienteSnapshot is a denormalized customer copy, not a foreign key.
type ClienteSnapshot struct {
	Codigo   string `json:"codigo"`
	Nombre   string `json:"nombre"`
	RNC      string `json:"rnc,omitempty"`
	Telefono string `json:"telefono,omitempty"`
}

// CartLineItem is one line of a register cart. Subtotal is derived and is
// recomputed by every mutator so the persisted value is never stale.
type CartLineItem struct {
	ID        string           `json:"id"`
	Producto  ProductoSnapshot `json:"producto"`
	Cantidad  decimal.Decimal  `json:"cantidad"`
	Precio    decimal.Decimal  `json:"precio"`
	Descuento decimal.Decimal  `json:"descuento"`
	Impuesto  decimal.Decimal  `json:"impuesto"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
}

func NewCartLineItem(producto ProductoSnapshot, cantidad decimal.Decimal) CartLineItem {
	line := CartLineItem{
		ID:       xid.New(producto.Codigo),
		Producto: producto,
		Cantidad: cantidad,
		Precio:   producto.Precio,
		Impuesto: producto.PorcientoImpuesto,
	}
	line.recompute()
	return line
}

func (l *CartLineItem) SetCantidad(cantidad decimal.Decimal) {
	l.Cantidad = cantidad
	l.recompute()
}

func (l *CartLineItem) SetPrecio(precio decimal.Decimal) {
	l.Precio = precio
	l.recompute()
}

func (l *CartLineItem) recompute() {
	l.Subtotal = l.Cantidad.Mul(l.Precio)
}

// OrderLine is the shape the totals calculator consumes. Discounts and taxes
// are percentages here; ISC and ADV are flat per-line amounts carried through
// from the product data without independent computation.
type OrderLine struct {
	Cantidad           decimal.Decimal `json:"cantidad"`
	Factor             decimal.Decimal `json:"factor"`
	Precio             decimal.Decimal `json:"precio"`
	PorcientoDescuento decimal.Decimal `json:"porciento_descuento"`
	PorcientoImpuesto  decimal.Decimal `json:"porciento_impuesto"`
	ISC                decimal.Decimal `json:"isc"`
	ADV                decimal.Decimal `json:"adv"`
}

// OrderLine converts a cart line to the totals-calculator shape. The line
// discount amount is expressed as a percentage of the undiscounted subtotal.
func (l CartLineItem) OrderLine() OrderLine {
	factor := l.Producto.Factor
	if factor.IsZero() {
		factor = decimal.NewFromInt(1)
	}
	porcientoDescuento := decimal.Zero
	if gross := l.Cantidad.Mul(factor).Mul(l.Precio); gross.IsPositive() && l.Descuento.IsPositive() {
		porcientoDescuento = l.Descuento.Div(gross).Mul(decimal.NewFromInt(100))
	}
	return OrderLine{
		Cantidad:           l.Cantidad,
		Factor:             factor,
		Precio:             l.Precio,
		PorcientoDescuento: porcientoDescuento,
		PorcientoImpuesto:  l.Impuesto,
		ISC:                l.Producto.ISC,
		ADV:                l.Producto.ADV,
	}
}

// HeldCart is a cart parked mid-transaction so the register can serve another
// customer. Treated as immutable once written.
type HeldCart struct {
	ID        string           `json:"id"`
	Cart      []CartLineItem   `json:"cart"`
	Cliente   *ClienteSnapshot `json:"cliente,omitempty"`
	Status    Status           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// PendingOrder is an order recorded locally because it could not (or was not
// yet) confirmed by the remote order service. The cart is copied at checkout
// time and never mutated afterwards; only the sync sweep flips the status.
type PendingOrder struct {
	ID        string           `json:"id"`
	Cart      []CartLineItem   `json:"cart"`
	Cliente   *ClienteSnapshot `json:"cliente,omitempty"`
	HoldID    string           `json:"hold_id,omitempty"`
	Status    Status           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	SyncedAt  *time.Time       `json:"synced_at,omitempty"`
}

// ProductSnapshotRecord is one captured copy of the product catalog, keyed by
// its capture timestamp. Only the most recent snapshot is considered current.
type ProductSnapshotRecord struct {
	Products   []ProductoSnapshot `json:"products"`
	CapturedAt time.Time          `json:"captured_at"`
}

// CheckoutResult reports how a checkout was settled: confirmed remotely right
// away, or queued locally for a later sync sweep.
type CheckoutResult struct {
	OrderID string `json:"order_id"`
	Queued  bool   `json:"queued"`
}

// SyncReport summarizes one sweep over the pending-order queue.
type SyncReport struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Remaining int `json:"remaining"`
}

func CloneCart(cart []CartLineItem) []CartLineItem {
	if cart == nil {
		return nil
	}
	cloned := make([]CartLineItem, len(cart))
	copy(cloned, cart)
	return cloned
}

func CloneCliente(cliente *ClienteSnapshot) *ClienteSnapshot {
	if cliente == nil {
		return nil
	}
	copied := *cliente
	return &copied
}
