package aggregator

// unwrapBase returns raw.data when present and non-null, else raw itself.
func unwrapBase(raw interface{}) interface{} {
	if obj, ok := asObject(raw); ok {
		if data, present := obj["data"]; present && data != nil {
			return data
		}
	}
	return raw
}

// extractList applies the unwrap strategies in priority order and falls
// back to an empty list.
func extractList(raw interface{}, fields []string) []Record {
	base := unwrapBase(raw)

	if list, ok := asList(base); ok {
		return toRecords(list)
	}
	obj, ok := asObject(base)
	if !ok {
		return []Record{}
	}
	if list, ok := asList(obj["data"]); ok {
		return toRecords(list)
	}
	if list, ok := asList(obj["items"]); ok {
		return toRecords(list)
	}
	for _, field := range fields {
		if list, ok := asList(obj[field]); ok {
			return toRecords(list)
		}
	}
	return []Record{}
}

// ScalarField holds a list element that was not an object, e.g. the
// strings of a skills list like ["Go", "SQL"].
const ScalarField = "value"

// toRecords keeps every non-null element. Non-object elements are wrapped
// under ScalarField so their order and content survive.
func toRecords(list []interface{}) []Record {
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		if obj, ok := asObject(item); ok {
			out = append(out, Record(cloneMap(obj)))
			continue
		}
		out = append(out, Record{ScalarField: cloneValue(item)})
	}
	return out
}

// normalizeProfile picks data.user, then user, then data, then the raw
// response, keeping the first candidate that is an object.
func normalizeProfile(raw interface{}) Record {
	obj, ok := asObject(raw)
	if !ok {
		return Record{}
	}
	var candidates []interface{}
	if data, ok := asObject(obj["data"]); ok {
		candidates = append(candidates, data["user"])
	}
	candidates = append(candidates, obj["user"], obj["data"], raw)

	for _, c := range candidates {
		if m, ok := asObject(c); ok {
			return Record(cloneMap(m))
		}
	}
	return Record{}
}

// normalizeSettings takes the first element of a list payload, then the
// first element of base.settings, then base itself.
func normalizeSettings(raw interface{}) Record {
	base := unwrapBase(raw)

	if list, ok := asList(base); ok {
		if len(list) > 0 {
			if m, ok := asObject(list[0]); ok {
				return Record(cloneMap(m))
			}
		}
		return Record{}
	}
	obj, ok := asObject(base)
	if !ok {
		return Record{}
	}
	if list, ok := asList(obj["settings"]); ok && len(list) > 0 {
		if m, ok := asObject(list[0]); ok {
			return Record(cloneMap(m))
		}
	}
	return Record(cloneMap(obj))
}

func normalizeCertificates(raw interface{}) []Record {
	items := extractList(raw, listFields[KeyCertificates])
	for _, r := range items {
		r["avatar"] = firstText(r["avatar"], r["image"])
	}
	return items
}

func normalizeTeam(raw interface{}) []Record {
	items := extractList(raw, listFields[KeyTeam])
	for _, r := range items {
		r["logo"] = firstText(r["logo"], r["image"], r["avatar"])
	}
	return items
}

func normalizeBlog(raw interface{}) []Record {
	items := extractList(raw, listFields[KeyBlog])
	for _, r := range items {
		r["excerpt"] = firstText(r["excerpt"], r["short_desc"], r["description"])
	}
	return items
}

// portfolioReserved are wrapper fields that never land in Portfolio.Extra.
var portfolioReserved = map[string]bool{
	"data": true, "items": true, "categories": true,
	"projects": true, "portfolios": true, "portfolio": true,
}

// normalizePortfolio resolves each project's display fields against the
// normalized services list.
func normalizePortfolio(raw interface{}, services []Record) Portfolio {
	projects := extractList(raw, listFields[KeyPortfolio])
	index := newServiceIndex(services)

	for _, p := range projects {
		var firstImage interface{}
		if images, ok := asList(p["images"]); ok && len(images) > 0 {
			firstImage = images[0]
		}
		original := p["description"]

		p["image"] = firstText(p["image"], p["image_cover"], firstImage)
		p["category"] = index.resolveCategory(p)
		p["description"] = firstText(original, p["short_desc"], p["desc"])
		p["full_description"] = firstText(p["full_description"], original)
	}

	portfolio := Portfolio{
		Projects:   projects,
		Categories: backendCategories(raw),
		Extra:      Record{},
	}
	if len(portfolio.Categories) == 0 {
		portfolio.Categories = deriveCategories(projects)
	}

	if obj, ok := asObject(unwrapBase(raw)); ok {
		for k, v := range obj {
			if !portfolioReserved[k] {
				portfolio.Extra[k] = cloneValue(v)
			}
		}
	}
	return portfolio
}

func backendCategories(raw interface{}) []string {
	obj, ok := asObject(unwrapBase(raw))
	if !ok {
		return nil
	}
	list, ok := asList(obj["categories"])
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, c := range list {
		if s := firstText(c); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// deriveCategories returns "all" followed by distinct non-empty project
// categories in first-seen order.
func deriveCategories(projects []Record) []string {
	out := []string{"all"}
	seen := map[string]bool{}
	for _, p := range projects {
		c := p.String("category")
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
