package dto

type LoginRequest struct {
	Email    string `json:"email" validate:"required,address"`
	Password string `json:"password" validate:"required,max=128"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}
