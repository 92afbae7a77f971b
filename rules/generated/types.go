// Code in generated/types.go
// Hand-written for the furniture-sales demo tenant; other tenants describe
// their records with a multitenantengine.Schema instead.

package generated

import "github.com/liamcoop/selection/rules"

// Client is the customer request a selection is made for
type Client struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	PointOfInterest string  `json:"pointOfInterest"`
	Budget          float64 `json:"budget"`
}

// State exposes the client's fields to rules under their JSON names
func (c Client) State() rules.State {
	return rules.State{
		"id":              c.ID,
		"name":            c.Name,
		"phone":           c.Phone,
		"pointOfInterest": c.PointOfInterest,
		"budget":          c.Budget,
	}
}

// User is an employee who can be assigned to a client
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Candidate converts the user for a selection pool
func (u User) Candidate() rules.Candidate {
	return rules.Candidate{ID: u.ID, Name: u.Name}
}

// Pool converts users to candidates, preserving order
func Pool(users []User) []rules.Candidate {
	out := make([]rules.Candidate, 0, len(users))
	for _, u := range users {
		out = append(out, u.Candidate())
	}
	return out
}

// DemoUsers is the furniture showroom staff
func DemoUsers() []User {
	return []User{
		{ID: 1, Name: "Joe Miller"},
		{ID: 2, Name: "Adam Willy"},
		{ID: 3, Name: "Joshua Eliot"},
		{ID: 4, Name: "Michael Scott (Regional Manager)"},
	}
}

// DemoRules assigns staff by point of interest, with the regional manager
// on every department and on any budget over 10000
func DemoRules() []rules.Rule {
	return []rules.Rule{
		rules.WithName(rules.NewStringRule("pointOfInterest", "Office Furniture", 1, 4), "office", "office furniture"),
		rules.WithName(rules.NewStringRule("pointOfInterest", "Home Furniture", 2, 4), "home", "home furniture"),
		rules.WithName(rules.NewStringRule("pointOfInterest", "Plumbing Fixtures", 3, 4), "plumbing", "plumbing fixtures"),
		rules.WithName(rules.NewNumberRule("budget", 10000, rules.Greater, 4), "budget", "big budget"),
	}
}

// DemoEngine is the showroom's selection engine
func DemoEngine() *rules.SelectionEngine {
	return rules.NewSelectionEngine(DemoRules(), Pool(DemoUsers()))
}
