package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func createTestServiceIndex() serviceIndex {
	return newServiceIndex([]Record{
		{"id": 1.0, "title": "Frontend"},
		{"id": "2", "name": "Design"},
		{"id": 3.0, "slug": "ops"},
		{"id": 4.0},
		{"title": "no id"},
	})
}

func TestResolveCategory(t *testing.T) {
	idx := createTestServiceIndex()

	tests := []struct {
		name    string
		project Record
		want    string
	}{
		{"explicit category", Record{"category": "Web", "service_name": "x"}, "Web"},
		{"blank category skipped", Record{"category": "   ", "service_name": "Backend"}, "Backend"},
		{"service_name beats service_id", Record{"service_name": "Backend", "service_id": 1.0}, "Backend"},
		{"service_title", Record{"service_title": "Infra", "service": map[string]interface{}{"title": "x"}}, "Infra"},
		{"service.title", Record{"service": map[string]interface{}{"title": "Apps", "name": "x"}}, "Apps"},
		{"service.name", Record{"service": map[string]interface{}{"name": "Data"}}, "Data"},
		{"service as string", Record{"service": "Consulting"}, "Consulting"},
		{"service_id numeric", Record{"service_id": 1.0}, "Frontend"},
		{"service_id string matches numeric", Record{"service_id": "1"}, "Frontend"},
		{"service_id numeric matches string id", Record{"service_id": 2.0}, "Design"},
		{"slug fallback", Record{"service_id": 3.0}, "ops"},
		{"service.id lookup", Record{"service": map[string]interface{}{"id": 2.0}}, "Design"},
		{"service_id preferred over service.id", Record{"service_id": 1.0, "service": map[string]interface{}{"id": 2.0}}, "Frontend"},
		{"unlabelled service", Record{"service_id": 4.0}, ""},
		{"unknown id", Record{"service_id": 42.0}, ""},
		{"nothing", Record{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.resolveCategory(tt.project))
		})
	}
}
