package aggregator

import "portfolio-sync/internal/models"

// serviceIndex maps a service id to its display label.
type serviceIndex map[string]string

func newServiceIndex(services []Record) serviceIndex {
	idx := make(serviceIndex, len(services))
	for _, s := range services {
		id := models.IDString(s["id"])
		if id == "" {
			continue
		}
		if label := firstText(s["title"], s["name"], s["slug"]); label != "" {
			idx[id] = label
		}
	}
	return idx
}

// resolveCategory returns the first non-empty candidate: explicit category,
// service_name, service_title, service.title, service.name, service as a
// bare string, then the service id looked up in the index.
func (idx serviceIndex) resolveCategory(project Record) string {
	if c := nonBlank(project["category"]); c != "" {
		return c
	}
	if c := firstText(project["service_name"], project["service_title"]); c != "" {
		return c
	}

	var serviceID interface{} = project["service_id"]
	switch svc := project["service"].(type) {
	case map[string]interface{}:
		if c := firstText(svc["title"], svc["name"]); c != "" {
			return c
		}
		if serviceID == nil {
			serviceID = svc["id"]
		}
	case string:
		if c := nonBlank(svc); c != "" {
			return c
		}
	}

	if id := models.IDString(serviceID); id != "" {
		return idx[id]
	}
	return ""
}
