package auth

// login request payload, form or JSON
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required,max=50"`
	Password string `json:"password" form:"password" validate:"required"`
}

// registration request payload
type RegisterRequest struct {
	Username  string `json:"username" form:"username" validate:"required,min=3,max=50,alphanum"`
	Email     string `json:"email" form:"email" validate:"required,email"`
	Password  string `json:"password" form:"password" validate:"required,min=8,bcryptmax"`
	Password2 string `json:"password2" form:"password2" validate:"required"`
	FirstName string `json:"first_name" form:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" form:"last_name" validate:"omitempty,max=100"`
}

// forgot password request payload
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

// reset password request payload; the token comes from the emailed link
type ResetPasswordRequest struct {
	Token        string `json:"token" form:"token" validate:"required"`
	NewPassword  string `json:"new_password" form:"new_password" validate:"required,min=8,bcryptmax"`
	NewPassword2 string `json:"new_password2" form:"new_password2" validate:"required"`
}
