package domain

// SaleLineRequest is one requested line of a sale. UnitPrice overrides
// the product base price when > 0.
type SaleLineRequest struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

// CreateSaleRequest is the raw sale request supplied by the caller.
type CreateSaleRequest struct {
	Items          []SaleLineRequest `json:"items"`
	PaymentMethod  string            `json:"payment_method"`
	PaymentDetails map[string]any    `json:"payment_details,omitempty"`
	TaxRate        *float64          `json:"tax_rate,omitempty"`
}

var PaymentMethods = map[string]bool{
	"cash":     true,
	"card":     true,
	"transfer": true,
	"other":    true,
}

// SaleReceipt is the synchronous response to a committed sale; it
// reflects ledger truth immediately, before the relay has run.
type SaleReceipt struct {
	SaleID        string  `json:"sale_id"`
	ItemsCount    int     `json:"items_count"`
	Total         float64 `json:"total"`
	Tax           float64 `json:"tax"`
	GrandTotal    float64 `json:"grand_total"`
	PaymentMethod string  `json:"payment_method"`
	OutboxEventID int64   `json:"outbox_event_id"`
}
