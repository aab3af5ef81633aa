// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

type Profile string

const (
	ProfileNormal Profile = "NORMAL"
	ProfileMaster Profile = "MASTER"
)

func (p Profile) Valid() bool {
	return p == ProfileNormal || p == ProfileMaster
}

// Audit is owned by the record that embeds it. Version starts at 1 and is
// incremented by the store on every effective mutation.
type Audit struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	Version   int       `db:"version"`
}

type User struct {
	ID           int64   `db:"id"`
	Username     string  `db:"username"`
	Email        string  `db:"email"`
	PasswordHash string  `db:"password_hash"`
	Profile      Profile `db:"profile"`
	Active       bool    `db:"active"`
	TenantID     *int64  `db:"tenant_id"`
	Audit
}

func (u *User) IsMaster() bool {
	return u.Profile == ProfileMaster
}

func (u *User) Tenant() int64 {
	if u.TenantID == nil {
		return 0
	}
	return *u.TenantID
}
