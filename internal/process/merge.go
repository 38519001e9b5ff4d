package process

import "github.com/permitdesk/permit-pipeline/internal/permit"

// Merge fills only the fields of data that were empty before; structured
// facts are never overwritten by AI output. Forms and the portal URL pass
// through untouched because the backend is not trusted for links.
func Merge(data permit.ExtractedPermitData, s Supplement) permit.ExtractedPermitData {
	supplemented := false

	if len(data.Permits) == 0 {
		if permits := s.ToPermitTypes(); len(permits) > 0 {
			data.Permits = permits
			supplemented = true
		}
	}
	if len(data.Fees) == 0 {
		if fees := s.ToFees(); len(fees) > 0 {
			data.Fees = fees
			supplemented = true
		}
	}
	if data.Contact.Phone == "" && s.Contact.Phone != "" {
		data.Contact.Phone = s.Contact.Phone
		supplemented = true
	}
	if data.Contact.Email == "" && s.Contact.Email != "" {
		data.Contact.Email = s.Contact.Email
		supplemented = true
	}
	if data.Contact.Address == "" && s.Contact.Address != "" {
		data.Contact.Address = s.Contact.Address
		supplemented = true
	}
	if data.Contact.Hours == "" && s.Contact.Hours != "" {
		data.Contact.Hours = s.Contact.Hours
		supplemented = true
	}
	if len(data.Processing.Times) == 0 && len(s.ProcessingTimes) > 0 {
		data.Processing.Times = s.ProcessingTimes
		supplemented = true
	}

	if supplemented {
		data.Source = permit.SourceSupplemented
	}
	return data
}
