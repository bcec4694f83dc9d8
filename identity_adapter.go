package auth

var _ PermissionedIdentity = userIdentity{}

// userIdentity exposes a User through the Identity interface
type userIdentity struct {
	user *User
}

// IdentityFromUser wraps a user record
func IdentityFromUser(u *User) Identity {
	if u == nil {
		return nil
	}
	return userIdentity{user: u}
}

func (i userIdentity) ID() string       { return i.user.ID.String() }
func (i userIdentity) Username() string { return i.user.Username }
func (i userIdentity) Email() string    { return i.user.Email }
func (i userIdentity) Role() string     { return string(i.user.Role) }

func (i userIdentity) Permissions() []string {
	return i.user.Role.Permissions()
}

// User returns the wrapped record
func (i userIdentity) User() *User {
	return i.user
}

type userBackedIdentity interface {
	User() *User
}

// UserFromIdentity unwraps identities created by IdentityFromUser
func UserFromIdentity(identity Identity) (*User, bool) {
	ui, ok := identity.(userBackedIdentity)
	if !ok {
		return nil, false
	}
	return ui.User(), true
}
