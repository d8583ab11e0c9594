// pkg/registry/schema.go
package registry

// MockRegistry is the canned dataset served by the simulated API client.
type MockRegistry struct {
	Version     string         `json:"version"`
	LastUpdated string         `json:"lastUpdated"`
	Login       MockLogin      `json:"login"`
	Endpoints   []MockEndpoint `json:"endpoints"`
}

// MockEndpoint binds an endpoint suffix to the payload returned under
// "data". Endpoints are matched in declaration order.
type MockEndpoint struct {
	Suffix string      `json:"suffix"`
	Data   interface{} `json:"data"`
}

// MockLogin holds the only credentials the simulated login accepts.
type MockLogin struct {
	Email    string                 `json:"email"`
	Password string                 `json:"password"`
	User     map[string]interface{} `json:"user"`
}
