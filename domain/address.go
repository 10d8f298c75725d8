package domain

import "strings"

type Country struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	ISO2 string `json:"iso2"`
	ISO3 string `json:"iso3"`
}

type State struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StateCode string `json:"state_code"`
}

// Address is the recipient and destination of an order.
type Address struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Street    string   `json:"street"`
	City      string   `json:"city"`
	Postcode  string   `json:"postcode"`
	Country   *Country `json:"country"`
	State     *State   `json:"state"`
}

// MissingFields lists the address fields that are empty, in form order.
func (a Address) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("first_name", a.FirstName)
	check("last_name", a.LastName)
	check("email", a.Email)
	check("phone", a.Phone)
	check("street", a.Street)
	if a.Country == nil {
		missing = append(missing, "country")
	}
	if a.State == nil {
		missing = append(missing, "state")
	}
	check("city", a.City)
	check("postcode", a.Postcode)
	return missing
}

// Complete reports whether every address field is filled in.
func (a Address) Complete() bool {
	return len(a.MissingFields()) == 0
}
