package domain

type UserID string

type UserRole string

const (
	RolePublisher  UserRole = "publisher"
	RoleSubscriber UserRole = "subscriber"
	RoleAdmin      UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RolePublisher, RoleSubscriber, RoleAdmin:
		return true
	}
	return false
}

// UserIdentity is the display identity embedded in a conference token.
type UserIdentity struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Moderator bool   `json:"moderator,omitempty"`
}
