package models

// LineItem is one priced row of an invoice preview.
type LineItem struct {
	JobID      ID       `json:"job_id"`
	JobNumber  string   `json:"job_number"`
	Title      string   `json:"title"`
	Service    string   `json:"service"`
	ServiceID  ID       `json:"service_id,omitempty"`
	Category   string   `json:"category,omitempty"`
	RateType   RateType `json:"rate_type"`
	Date       string   `json:"date"`
	UnitPrice  float64  `json:"unit_price"`
	Quantity   float64  `json:"quantity"`
	TaxCodeID  string   `json:"tax_code_id,omitempty"`
	Total      float64  `json:"total"`
	WorkerID   ID       `json:"worker_id"`
	WorkerName string   `json:"worker_name"`
	Position   string   `json:"position"`
	ShiftTime  string   `json:"shift_time,omitempty"`
}

// CoverageGap is a required rate missing from the customer's rate card.
type CoverageGap struct {
	Position string   `json:"position"`
	RateType RateType `json:"rateType"`
}

// Subtotal sums line-item totals, rounded to cents.
func Subtotal(items []LineItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Total
	}
	return Round2(sum)
}
