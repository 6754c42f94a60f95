package types

// ShippingInfo is the address snapshot stored on an order.
type ShippingInfo struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// PaymentInfo records how the buyer intends to pay. The core never charges;
// it only persists the snapshot handed to it at checkout.
type PaymentInfo struct {
	Method string `json:"method"`
	Ref    string `json:"ref,omitempty"`
}

// CheckoutTotals is the monetary summary frozen onto an order at checkout.
type CheckoutTotals struct {
	OrderSubtotal int `json:"order_subtotal"`
	SaleDiscount  int `json:"sale_discount"`
	VoucherTotal  int `json:"voucher_total"`
	GrandTotal    int `json:"grand_total"`
}
