package model

import "database/sql"

// Merch mirrors the `merch` table.  Sizes is stored as a comma separated
// list in a single column; repositories split and join it at the boundary.
type Merch struct {
	ID          uint64         // merch.id
	Title       string         // merch.title
	Photo       sql.NullString // merch.photo
	Sizes       []string       // merch.sizes (csv column)
	Description sql.NullString // merch.description
	Stock       int            // merch.stock
	Price       int            // merch.price (rupees)
}

// HasSize reports whether s is one of the offered sizes.
func (m Merch) HasSize(s string) bool {
	for _, v := range m.Sizes {
		if v == s {
			return true
		}
	}
	return false
}
