package models

import (
	"encoding/json"
	"strings"
)

// RateType names one priced tuple of a rate card row.
type RateType string

const (
	RateWeekdayRegular          RateType = "weekday_regular"
	RateWeekdayOvertime         RateType = "weekday_overtime"
	RateWeekdayDoubleTime       RateType = "weekday_double_time"
	RateSaturdayOvertime        RateType = "saturday_overtime"
	RateSaturdayDoubleTime      RateType = "saturday_double_time"
	RateSundayHolidayDoubleTime RateType = "sunday_holiday_double_time"
	RateMobilization            RateType = "mobilization"
	// RateBase is the position's generic service, stored unprefixed on the row.
	RateBase RateType = "base"
)

// RateTypes lists every tuple a row can carry, in wire order.
var RateTypes = []RateType{
	RateBase,
	RateWeekdayRegular,
	RateWeekdayOvertime,
	RateWeekdayDoubleTime,
	RateSaturdayOvertime,
	RateSaturdayDoubleTime,
	RateSundayHolidayDoubleTime,
	RateMobilization,
}

func (t RateType) fieldPrefix() string {
	if t == RateBase {
		return "service"
	}
	return string(t) + "_service"
}

// ServiceRate is a priced, taxed billable service.
type ServiceRate struct {
	ServiceID ID      `json:"service_id,omitempty"`
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	Price     float64 `json:"price"`
	TaxCodeID string  `json:"tax_code_id,omitempty"`
}

// Valid reports whether the tuple can be billed: it needs a name and a positive price.
func (r ServiceRate) Valid() bool {
	return strings.TrimSpace(r.Name) != "" && r.Price > 0
}

// RateCardRow holds a customer's negotiated rates for one position.
type RateCardRow struct {
	ID         ID                       `json:"id,omitempty"`
	CustomerID ID                       `json:"customer_id"`
	Position   string                   `json:"position"`
	Rates      map[RateType]ServiceRate `json:"-"`
}

// Rate returns the tuple for t; ok is false when the row has no such tuple.
func (r *RateCardRow) Rate(t RateType) (ServiceRate, bool) {
	if r == nil || r.Rates == nil {
		return ServiceRate{}, false
	}
	rate, ok := r.Rates[t]
	return rate, ok
}

// UnmarshalJSON reads the flat `{prefix}_service_{id,name,category,price,tax_code_id}`
// layout the dashboard uses into the typed Rates map.
func (r *RateCardRow) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = RateCardRow{Rates: make(map[RateType]ServiceRate)}
	if err := decodeField(fields, "id", &r.ID); err != nil {
		return err
	}
	if err := decodeField(fields, "customer_id", &r.CustomerID); err != nil {
		return err
	}
	if err := decodeField(fields, "position", &r.Position); err != nil {
		return err
	}

	for _, t := range RateTypes {
		prefix := t.fieldPrefix()
		var (
			rate  ServiceRate
			price Price
			tax   ID
		)
		if err := decodeField(fields, prefix+"_id", &rate.ServiceID); err != nil {
			return err
		}
		if err := decodeField(fields, prefix+"_name", &rate.Name); err != nil {
			return err
		}
		if err := decodeField(fields, prefix+"_category", &rate.Category); err != nil {
			return err
		}
		if err := decodeField(fields, prefix+"_price", &price); err != nil {
			return err
		}
		if err := decodeField(fields, prefix+"_tax_code_id", &tax); err != nil {
			return err
		}
		rate.Price = float64(price)
		rate.TaxCodeID = string(tax)

		if rate.Name == "" && rate.Price == 0 && rate.ServiceID == "" {
			continue
		}
		r.Rates[t] = rate
	}
	return nil
}

// MarshalJSON writes the row back in the flat dashboard layout.
func (r RateCardRow) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"customer_id": r.CustomerID,
		"position":    r.Position,
	}
	if r.ID != "" {
		out["id"] = r.ID
	}
	for t, rate := range r.Rates {
		prefix := t.fieldPrefix()
		out[prefix+"_id"] = rate.ServiceID
		out[prefix+"_name"] = rate.Name
		out[prefix+"_category"] = rate.Category
		out[prefix+"_price"] = rate.Price
		out[prefix+"_tax_code_id"] = rate.TaxCodeID
	}
	return json.Marshal(out)
}

func decodeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	// Strings sometimes arrive as numbers (and the reverse); be lenient for text fields.
	if s, isString := dst.(*string); isString && len(raw) > 0 && raw[0] != '"' {
		*s = string(raw)
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// RateCard is every row negotiated with one customer.
type RateCard struct {
	CustomerID ID            `json:"customer_id"`
	Rows       []RateCardRow `json:"rows"`
}

// Row returns the row for a position, comparing normalized positions.
// The first matching row wins when the dashboard returns duplicates.
func (c *RateCard) Row(position string) *RateCardRow {
	if c == nil {
		return nil
	}
	want := NormalizePosition(position)
	for i := range c.Rows {
		if NormalizePosition(c.Rows[i].Position) == want {
			return &c.Rows[i]
		}
	}
	return nil
}

// Service is an entry of the services catalog, used as a tax-code fallback.
type Service struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	TaxCodeID ID     `json:"tax_code_id"`
}

// Catalog indexes services by (name, category), case-insensitively.
type Catalog struct {
	byKey map[string]Service
}

// NewCatalog builds a catalog. Earlier services win on duplicate keys.
func NewCatalog(services []Service) *Catalog {
	c := &Catalog{byKey: make(map[string]Service, len(services))}
	for _, s := range services {
		key := catalogKey(s.Name, s.Category)
		if _, exists := c.byKey[key]; exists {
			continue
		}
		c.byKey[key] = s
	}
	return c
}

// TaxCode returns the catalog tax code for (name, category), or "" when unknown.
func (c *Catalog) TaxCode(name, category string) string {
	if c == nil {
		return ""
	}
	if s, ok := c.byKey[catalogKey(name, category)]; ok {
		return string(s.TaxCodeID)
	}
	return ""
}

func catalogKey(name, category string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(category))
}
