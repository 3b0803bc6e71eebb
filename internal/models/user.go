package models

import "time"

// BillingPlan names the subscription tier driving rate-limit lookups.
type BillingPlan string

const (
	PlanFree       BillingPlan = "free"
	PlanPro        BillingPlan = "pro"
	PlanEnterprise BillingPlan = "enterprise"
)

// User represents an application user stored in the users table.
type User struct {
	ID              string      `db:"id" json:"id"`
	Email           string      `db:"email" json:"email"`
	PasswordHash    string      `db:"password_hash" json:"-"`
	FullName        string      `db:"full_name" json:"full_name"`
	BillingPlan     BillingPlan `db:"billing_plan" json:"billing_plan"`
	IsPlatformAdmin bool        `db:"is_platform_admin" json:"is_platform_admin"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID              string      `json:"id"`
	Email           string      `json:"email"`
	FullName        string      `json:"full_name"`
	BillingPlan     BillingPlan `json:"billing_plan"`
	IsPlatformAdmin bool        `json:"is_platform_admin"`
}

// Info projects the user into its response shape.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:              u.ID,
		Email:           u.Email,
		FullName:        u.FullName,
		BillingPlan:     u.BillingPlan,
		IsPlatformAdmin: u.IsPlatformAdmin,
	}
}

// UpdateProfileRequest mutates the caller's own profile fields.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
}

// UserFilter captures filtering criteria for admin user listings.
type UserFilter struct {
	Plan     *BillingPlan
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
