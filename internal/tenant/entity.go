// AngelaMos | 2026
// entity.go

package tenant

import (
	"time"
)

type Tenant struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	Version   int       `db:"version"`
}
