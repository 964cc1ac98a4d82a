package models

// Carrier identifies the delivery company responsible for a parcel.
// Known carriers have a fixed lowercase code; anything else passes through
// verbatim as an unrecognized carrier. The same text is used in the carrier
// column, form fields and JSON payloads.
type Carrier string

const CarrierDHL Carrier = "dhl"

// ParseCarrier never fails: "dhl" yields CarrierDHL, any other code is kept
// as-is (case-sensitive), so ParseCarrier(c.Code()) == c for every value.
func ParseCarrier(code string) Carrier {
	return Carrier(code)
}

// Code returns the canonical textual form of the carrier.
func (c Carrier) Code() string {
	return string(c)
}

// Known reports whether a tracking provider can exist for this carrier.
func (c Carrier) Known() bool {
	return c == CarrierDHL
}
