package models

// Role роль участника площадки
type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleFarmer || r == RoleCustomer
}

// User представляет пользователя из коллекции users.
// Ядро только читает пользователей, регистрация живёт снаружи.
type User struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Location string `json:"location,omitempty"`
}

// Public возвращает копию без пароля для ответов API
func (u User) Public() User {
	u.Password = ""
	return u
}
