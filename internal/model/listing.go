package model

// RawListingRecord is one recorded notice pulled from the county
// public-records portal. Records are created once per acquisition and are
// never modified afterwards.
type RawListingRecord struct {
	// DocumentNumber is the portal's instrument number for the notice.
	DocumentNumber string `json:"document_number"`

	// RecordedDate is the date the notice was recorded, in YYYY-MM-DD form
	// when the portal value could be parsed.
	RecordedDate string `json:"recorded_date,omitempty"`

	// SaleDate is the scheduled sale date, in YYYY-MM-DD form when parsed.
	SaleDate string `json:"sale_date,omitempty"`

	// RawAddress is the property address exactly as the portal printed it,
	// with whitespace collapsed.
	RawAddress string `json:"raw_address"`

	// DocType is the portal's document type label (e.g. "NOTICE OF TRUSTEE SALE").
	DocType string `json:"doc_type,omitempty"`
}

// NormalizedAddress is the structured form of a RawListingRecord address.
type NormalizedAddress struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
	Raw    string `json:"raw"`
}

// OneLine renders the address as "STREET, CITY, ST ZIP", skipping empty parts.
func (a NormalizedAddress) OneLine() string {
	out := a.Street
	if a.City != "" {
		if out != "" {
			out += ", "
		}
		out += a.City
	}
	tail := a.State
	if a.Zip != "" {
		if tail != "" {
			tail += " "
		}
		tail += a.Zip
	}
	if tail != "" {
		if out != "" {
			out += ", "
		}
		out += tail
	}
	return out
}

// CityStateZip renders "CITY, ST ZIP" for search forms that take the
// locality in a single input.
func (a NormalizedAddress) CityStateZip() string {
	return NormalizedAddress{City: a.City, State: a.State, Zip: a.Zip}.OneLine()
}

// GeocodeResult is a coordinate match for one address. A missing result is
// a valid outcome and is represented by the absence of a value.
type GeocodeResult struct {
	ID             string  `json:"id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	MatchedAddress string  `json:"matched_address,omitempty"`

	// Source names the provider that produced the match ("census", "nominatim").
	Source string `json:"source,omitempty"`
}

// OwnerRecord is the owner-of-record for a property as reported by the
// county tax assessor.
type OwnerRecord struct {
	OwnerName string `json:"owner_name"`

	// MailingAddress is empty when the assessor did not print one.
	MailingAddress string `json:"mailing_address,omitempty"`
}

// ContactRecord holds the phone numbers and emails found for an owner on the
// people-search site, together with how confident the identity match is.
type ContactRecord struct {
	PhoneNumbers      []string `json:"phone_numbers"`
	Emails            []string `json:"emails"`
	MatchConfidence   float64  `json:"match_confidence"`
	MatchedPersonName string   `json:"matched_person_name,omitempty"`

	// Fallback is set when no candidate matched the owner name and the first
	// listed person was used instead.
	Fallback bool `json:"fallback,omitempty"`

	// NeedsReview marks matches that should not be trusted without a human
	// looking at them: fallbacks and matches at exactly the acceptance threshold.
	NeedsReview bool `json:"needs_review,omitempty"`

	// SourceURL is the detail page the contacts were read from.
	SourceURL string `json:"source_url,omitempty"`
}
