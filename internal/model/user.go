package model

// UserRole is issued by the identity service together with the user id.
// Users themselves are not stored here.
type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

func (r UserRole) IsAdmin() bool {
	return r == Admin
}
