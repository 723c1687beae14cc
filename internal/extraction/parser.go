package extraction

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Result is the tagged outcome of parsing LLM output. When Degraded is true
// the raw content was kept as the summary and every structured field is
// empty; callers should surface that (log/metric) since it silently drops
// structured data.
type Result struct {
	Degraded bool
	Record   Record
}

// Parser validates provider output against the extraction contract schema.
type Parser struct {
	schema *jsonschema.Schema
}

// NewParser compiles the contract schema from schemaPath
// (e.g. "schemas/extraction.v1.json").
func NewParser(schemaPath string) (*Parser, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", schemaPath, err)
	}
	schema, err := jsonschema.CompileString("https://saleslog.dev/schemas/extraction.v1", string(data))
	if err != nil {
		return nil, fmt.Errorf("compile extraction schema: %w", err)
	}
	return &Parser{schema: schema}, nil
}

// Parse never fails: content that is not a valid contract object degrades
// to a summary-only result instead.
func (p *Parser) Parse(content string) Result {
	trimmed := strings.TrimSpace(content)

	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return degraded(trimmed)
	}
	if err := p.schema.Validate(doc); err != nil {
		return degraded(trimmed)
	}
	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return degraded(trimmed)
	}
	rec.Appointments = MergeAppointments(rec.Appointments)
	return Result{Record: rec}
}

func degraded(raw string) Result {
	return Result{Degraded: true, Record: Record{Summary: raw}}
}

// MergeAppointments collapses near-duplicates: two appointments describing
// the same action are one compound task, not two schedule rows. Appointments
// merge when their normalized titles match, or when one title contains the
// other and the dates do not conflict. The survivor keeps the earliest
// non-null date and the longer description.
func MergeAppointments(appts []Appointment) []Appointment {
	var out []Appointment
	for _, a := range appts {
		merged := false
		for i := range out {
			if !sameAction(out[i], a) {
				continue
			}
			if out[i].Date == nil {
				out[i].Date = a.Date
			} else if a.Date != nil {
				if ta, err1 := time.Parse(time.RFC3339, *a.Date); err1 == nil {
					if tb, err2 := time.Parse(time.RFC3339, *out[i].Date); err2 == nil && ta.Before(tb) {
						out[i].Date = a.Date
					}
				}
			}
			if len(a.Desc) > len(out[i].Desc) {
				out[i].Desc = a.Desc
			}
			merged = true
			break
		}
		if !merged {
			out = append(out, a)
		}
	}
	return out
}

func sameAction(a, b Appointment) bool {
	ta, tb := normalizeTitle(a.Title), normalizeTitle(b.Title)
	if ta == tb {
		return true
	}
	if !strings.Contains(ta, tb) && !strings.Contains(tb, ta) {
		return false
	}
	// Containment counts only when the dates do not say otherwise.
	if a.Date != nil && b.Date != nil && *a.Date != *b.Date {
		return false
	}
	return true
}

func normalizeTitle(t string) string {
	return strings.ToLower(strings.Join(strings.Fields(t), " "))
}
