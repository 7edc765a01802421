package types

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// ShippingInfo is the recipient block captured at checkout and stored as JSONB.
type ShippingInfo struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Missing lists the required recipient fields that are blank.
func (s ShippingInfo) Missing() []string {
	missing := []string{}
	if strings.TrimSpace(s.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(s.Phone) == "" {
		missing = append(missing, "phone")
	}
	return missing
}

// Value serializes the shipping info to JSON.
func (s ShippingInfo) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan decodes JSONB into the shipping info.
func (s *ShippingInfo) Scan(value any) error {
	if value == nil {
		*s = ShippingInfo{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, s)
}
