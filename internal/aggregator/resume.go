package aggregator

import "strings"

// ResumeSection pairs a declared section type with its normalized list.
type ResumeSection struct {
	Type string   `json:"type"`
	Data []Record `json:"data"`
}

// DefaultResumeOrder applies when the backend declares no usable order.
var DefaultResumeOrder = []string{"education", "experience", "skills"}

// parseResumeOrder reads the order from a bare list or base.order. Entries
// may be strings or objects carrying type or name.
func parseResumeOrder(raw interface{}) []string {
	base := unwrapBase(raw)

	list, ok := asList(base)
	if !ok {
		if obj, isObj := asObject(base); isObj {
			list, ok = asList(obj["order"])
		}
	}
	if !ok {
		return append([]string(nil), DefaultResumeOrder...)
	}

	order := make([]string, 0, len(list))
	for _, item := range list {
		var t string
		switch v := item.(type) {
		case string:
			t = v
		case map[string]interface{}:
			t = firstText(v["type"], v["name"])
		}
		if t = strings.TrimSpace(t); t != "" {
			order = append(order, t)
		}
	}
	if len(order) == 0 {
		return append([]string(nil), DefaultResumeOrder...)
	}
	return order
}

// buildResume pairs each declared type with its list. Unknown types get an
// empty list.
func buildResume(order []string, s *Snapshot) []ResumeSection {
	sections := make([]ResumeSection, 0, len(order))
	for _, t := range order {
		var data []Record
		switch t {
		case "education":
			data = s.Education
		case "experience":
			data = s.Experience
		case "skills":
			data = s.Skills
		}
		if data == nil {
			data = []Record{}
		}
		sections = append(sections, ResumeSection{Type: t, Data: cloneRecords(data)})
	}
	return sections
}
