package crm

import "deal_watcher/models"

// ContractFilter keeps leads whose contract-type field carries exactly the configured value.
type ContractFilter struct {
	criterion models.ContractCriterion
	expected  []models.FieldValue
}

func NewContractFilter(c models.ContractCriterion) *ContractFilter {
	return &ContractFilter{criterion: c, expected: c.Expected()}
}

func (f *ContractFilter) IsQualifying(lead models.Lead) bool {
	for _, field := range lead.CustomFields {
		if field.FieldID != f.criterion.FieldID || field.FieldName != f.criterion.FieldName {
			continue
		}
		if valuesEqual(field.Values, f.expected) {
			return true
		}
	}
	return false
}

// Filter preserves input order.
func (f *ContractFilter) Filter(leads []models.Lead) []models.Lead {
	var out []models.Lead
	for _, l := range leads {
		if f.IsQualifying(l) {
			out = append(out, l)
		}
	}
	return out
}

func valuesEqual(a, b []models.FieldValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
