package models

// Principal is the authenticated admin user returned by the backend.
type Principal struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Email string                 `json:"email"`
	Raw   map[string]interface{} `json:"-"`
}

// PrincipalFromRecord builds a Principal from a decoded user object. It
// returns nil when the object carries no usable id.
func PrincipalFromRecord(m map[string]interface{}) *Principal {
	if m == nil {
		return nil
	}
	id := IDString(m["id"])
	if id == "" {
		return nil
	}
	return &Principal{
		ID:    id,
		Name:  Text(m["name"]),
		Email: Text(m["email"]),
		Raw:   m,
	}
}
