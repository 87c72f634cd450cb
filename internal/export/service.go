package export

import "fmt"

// Service generates return receipts.
type Service struct{}

// NewService creates an export service.
func NewService() *Service {
	return &Service{}
}

// ReturnReceipt renders the receipt HTML and converts it to PDF.
func (s *Service) ReturnReceipt(r Receipt) (*Result, error) {
	html, err := RenderReceiptHTML(r)
	if err != nil {
		return nil, fmt.Errorf("render receipt template: %w", err)
	}
	return renderPDF(html, "return-receipt-"+r.ClaimID)
}
