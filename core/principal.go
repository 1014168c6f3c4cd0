package core

// UserID is the stable identifier of a domain user.
type UserID string

func (id UserID) String() string {
	return string(id)
}

// User is the canonical domain user record.
type User struct {
	ID           UserID
	Email        string
	Username     string
	FullName     string
	PasswordHash string
	Roles        []string
}

// Principal is the verified identity handed to authorization code and to
// grant issuance. It is derived from a User and never cached.
type Principal struct {
	UserID       UserID
	Email        string
	PasswordHash string
	Roles        []string
}

// PrincipalFromUser builds a fresh Principal for u.
func PrincipalFromUser(u *User) *Principal {
	if u == nil {
		return nil
	}
	return &Principal{
		UserID:       u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        append([]string(nil), u.Roles...),
	}
}

// Identifier returns the identity-provider facing identifier.
func (p *Principal) Identifier() string {
	return string(p.UserID)
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
