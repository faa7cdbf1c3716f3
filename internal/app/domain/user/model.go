package user

// Role values stored in the users.role column.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an account holder of the storefront.
type User struct {
	ID        int64  `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	Firstname string `db:"firstname" json:"firstname"`
	Lastname  string `db:"lastname" json:"lastname"`
	Role      string `db:"role" json:"role"`
	Password  string `db:"password" json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Public is the password-free projection served by the users endpoints.
type Public struct {
	ID        int64  `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	Firstname string `db:"firstname" json:"firstname"`
	Lastname  string `db:"lastname" json:"lastname"`
	Role      string `db:"role" json:"role"`
}

// PublicColumns is the projection used when reading users for display.
var PublicColumns = []string{"id", "username", "firstname", "lastname", "role"}
