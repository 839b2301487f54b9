// Package dto defines the request payloads of the HTTP layer.
package dto

// LockRequest asks for an item lock.
type LockRequest struct {
	Action string `json:"lock_action" validate:"omitempty,oneof=edit correct rewrite"`
}

// UnlockRequest releases an item lock.
type UnlockRequest struct {
	Force bool `json:"force"`
}

// DuplicateRequest duplicates an item.
type DuplicateRequest struct {
	State string `json:"state" validate:"omitempty,oneof=draft submitted in_progress"`
}

// RewriteRequest links or creates the update story of an item.
type RewriteRequest struct {
	// UpdateID attaches the rewrite to an existing item instead of
	// creating a fresh one.
	UpdateID string `json:"update_id"`
}

// ListQuery carries the common archive list parameters.
type ListQuery struct {
	Page       int    `form:"page" validate:"omitempty,min=1"`
	MaxResults int    `form:"max_results" validate:"omitempty,min=1,max=200"`
	Desk       string `form:"desk"`
	Stage      string `form:"stage"`
	State      string `form:"state"`
	ItemType   string `form:"type"`
	Slugline   string `form:"slugline"`
	Sort       string `form:"sort"`
	Projection string `form:"projection"`
}

// CreateUserRequest registers a user.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
	SignOff  string `json:"sign_off"`
	Role     string `json:"role" validate:"required,oneof=ADMIN EDITOR JOURNALIST"`
}
