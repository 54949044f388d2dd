package types

// ExtraCost is one itemized additional charge on a closing report.
type ExtraCost struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// ExtraCosts is stored as a jsonb column on the closing report.
type ExtraCosts []ExtraCost

// Total returns the summed amount across all items.
func (e ExtraCosts) Total() int64 {
	var total int64
	for _, cost := range e {
		total += cost.Quantity * cost.UnitPrice
	}
	return total
}

// PhotoRefs holds opaque evidence photo references submitted by the helper.
type PhotoRefs []string
