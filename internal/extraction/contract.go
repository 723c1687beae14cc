// Package extraction defines the structured-output contract given to the
// LLM and the fail-soft parser that validates what comes back.
package extraction

// Appointment is one follow-up action item. Date is ISO-8601 with offset,
// or null when the note states no date and none could be defaulted.
type Appointment struct {
	Title       string  `json:"title"`
	Date        *string `json:"date"`
	Desc        string  `json:"desc"`
	ActionOwner string  `json:"actionOwner"`
}

// ContactInfo is one distinct person mentioned in the note. A different
// name or a different role is a different person.
type ContactInfo struct {
	Name  string  `json:"name"`
	Role  *string `json:"role"`
	Phone *string `json:"phone"`
	Email *string `json:"email"`
}

// Record is the extraction contract the provider fills in.
type Record struct {
	Summary      string        `json:"summary"`
	Appointments []Appointment `json:"appointments"`
	ClientName   *string       `json:"clientName"`
	Contacts     []ContactInfo `json:"contacts"`
	Amount       *int64        `json:"amount"`
	Notes        string        `json:"notes"`
}

// SystemPrompt is the instruction sent with every analysis call. It encodes
// the contract rules the model must follow; the response must be a single
// JSON object matching the extraction schema.
const SystemPrompt = `You are a CRM assistant for Korean B2B sales teams. Read the sales note and
return ONE JSON object with exactly these fields:

{
  "summary": "short prose summary of the visit",
  "appointments": [{"title": "...", "date": "ISO-8601 with offset or null", "desc": "...", "actionOwner": "self|client|shared"}],
  "clientName": "official business entity name or null",
  "contacts": [{"name": "...", "role": "... or null", "phone": "... or null", "email": "... or null"}],
  "amount": integer in KRW or null,
  "notes": "anything that fits nowhere else"
}

Rules:
- Every action item becomes an appointment, not only the headline meeting.
  Include prep tasks due before a dated event. Open-ended follow-ups with no
  stated date default to 3 days from today.
- actionOwner: "self" when our side must act (send materials, confirm and
  reply, chase a pending reply); "client" when the counterparty must act;
  "shared" for joint activities (meetings, demos, signings).
- Merge near-duplicate appointments: the same action type targeting the same
  recipient is ONE appointment, even when the note mentions it twice.
- amount: parse Korean monetary phrases with fixed multipliers
  (억 = 100000000, 천만 = 10000000, 백만 = 1000000). If the note contains no
  monetary phrase, amount is null, never 0.
- contacts: one entry per distinct person. A different name OR a different
  role is a different person; never collapse two named individuals into one.
- clientName: the official entity name, not a nickname or abbreviation.
- Respond with the JSON object only, no surrounding text.`
