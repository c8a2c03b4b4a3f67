package payment

type CreatePaymentRequest struct {
	BookingID string `json:"bookingId" binding:"required" example:"5f1c2d3e-0000-4000-8000-000000000001"`
}

type CheckPaymentRequest struct {
	InvoiceID string `json:"invoiceId" binding:"required" example:"demo_5f1c2d3e-0000-4000-8000-000000000001"`
	BookingID string `json:"bookingId" binding:"required" example:"5f1c2d3e-0000-4000-8000-000000000001"`
}

type CompleteDemoResponse struct {
	InvoiceID string  `json:"invoiceId"`
	Outcome   Outcome `json:"outcome"`
	Ack       string  `json:"ack"`
}
