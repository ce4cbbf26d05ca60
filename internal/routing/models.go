package routing

import "time"

// Rule routes messages of one business domain to a backend. The match
// expression is a boolean CEL expression over the message's routing
// attributes. Rules are evaluated highest priority first; the first match
// wins.
type Rule struct {
	ID          string    `json:"id"`
	DomainID    string    `json:"domain_id"`
	Name        string    `json:"name"`
	Expression  string    `json:"expression"`
	Priority    int       `json:"priority"`
	BackendName string    `json:"backend_name"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
