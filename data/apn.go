package data

// APN describes a packet data access point and its credentials
type APN struct {
	Name     string `json:"apn" yaml:"apn"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// Label is a human readable name, usually from the provider database
	Label string `json:"name,omitempty" yaml:"name,omitempty"`
}

// IsZero returns true if no APN name is set
func (a APN) IsZero() bool {
	return a.Name == ""
}

// Operator identifies a network operator
type Operator struct {
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Country string `json:"country,omitempty" yaml:"country,omitempty"`
}

// Provider is a provider database entry for one network
type Provider struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Country         string `json:"country,omitempty" yaml:"country,omitempty"`
	RequiresRoaming bool   `json:"requiresRoaming,omitempty" yaml:"requiresRoaming,omitempty"`
	APNs            []APN  `json:"apns,omitempty" yaml:"apns,omitempty"`
}

// Operator returns the provider as an operator record
func (p Provider) Operator() Operator {
	return Operator{Code: p.ID, Name: p.Name, Country: p.Country}
}
