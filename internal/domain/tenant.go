package domain

import "time"

// Tenant is a renter on file for a landlord's chat, collected by the
// onboarding flow.
type Tenant struct {
	ChatID    int64     `db:"chat_id"`
	Name      string    `db:"name"`
	Unit      string    `db:"unit"`
	Rent      string    `db:"rent"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}
