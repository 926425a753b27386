package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Book is a catalog title and the number of copies on the shelf.
type Book struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Author    string    `json:"author" db:"author"`
	ISBN      string    `json:"isbn" db:"isbn"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Filter narrows ListBooks. Empty fields match everything; non-empty
// fields are case-insensitive substring matches.
type Filter struct {
	Title  string
	Author string
}

// Patch carries a partial update. Nil fields keep their stored value.
type Patch struct {
	Title    *string `json:"title,omitempty"`
	Author   *string `json:"author,omitempty"`
	ISBN     *string `json:"isbn,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
}

// NewBook is the input to CreateBook. A nil Quantity defaults to zero.
type NewBook struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	ISBN     string `json:"isbn"`
	Quantity *int   `json:"quantity,omitempty"`
}
