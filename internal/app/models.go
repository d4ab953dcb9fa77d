package app

import "time"

type CreateTeamRequest struct {
	Name string `json:"name" form:"name" binding:"required,min=2,max=64"`
}

type JoinTeamRequest struct {
	Link string `json:"link" form:"link" binding:"required"`
}

type SetAdminRequest struct {
	Email string `json:"email" form:"email" binding:"required,email"`
}

type AddSectionRequest struct {
	Name string `json:"name" form:"name" binding:"required,min=1,max=64"`
}

// TaskEditRequest carries one edit session's field changes. Absent fields
// keep the loaded value; ClearDueDate removes the deadline since a nil
// DueDate alone cannot distinguish "unchanged" from "cleared".
type TaskEditRequest struct {
	Title       *string    `json:"title" form:"title" binding:"omitempty,max=120"`
	Description *string    `json:"description" form:"description" binding:"omitempty,max=2000"`
	Assignee    *string    `json:"assignee" form:"assignee" binding:"omitempty,max=128"`
	Section     *string    `json:"section" form:"section" binding:"omitempty,max=64"`
	Status      *string    `json:"status" form:"status" binding:"omitempty,max=64"`
	Frequency   *string    `json:"frequency" form:"frequency" binding:"omitempty,max=64"`
	Recurring   *bool      `json:"recurring" form:"recurring"`
	DueDate     *time.Time `json:"due_date" form:"due_date"`

	ClearDueDate bool `json:"clear_due_date" form:"clear_due_date"`
}

type AssignTaskRequest struct {
	Email string `json:"email" form:"email" binding:"required,email"`
}

type CommentRequest struct {
	Text string `json:"text" form:"text" binding:"required,min=1,max=2000"`
}

type MessageRequest struct {
	Text string `json:"text" form:"text" binding:"required,min=1,max=2000"`
}

type ProfileRequest struct {
	FirstName string `json:"first_name" form:"first_name" binding:"required,min=1,max=64"`
	LastName  string `json:"last_name" form:"last_name" binding:"required,min=1,max=64"`
	Location  string `json:"location" form:"location" binding:"max=128"`
	ImageRef  string `json:"image_ref" form:"image_ref" binding:"max=256"`
}

type RegisterRequest struct {
	Email     string `json:"email" form:"email" binding:"required,email"`
	Password  string `json:"password" form:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" form:"first_name" binding:"required,min=1,max=64"`
	LastName  string `json:"last_name" form:"last_name" binding:"required,min=1,max=64"`
}

type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}
