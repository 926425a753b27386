package auth

import (
	"time"

	"github.com/google/uuid"
)

// Librarian is a staff account allowed to operate the library.
type Librarian struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AccessToken is returned by a successful login.
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// librarianRow is the persisted form, credential included.
type librarianRow struct {
	Librarian
	PasswordHash string `db:"password_hash"`
	Salt         string `db:"salt"`
}

func (r librarianRow) credential() Credential {
	return Credential{hash: r.PasswordHash, salt: r.Salt}
}
