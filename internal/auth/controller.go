package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"socialhub/internal/security"
	"socialhub/internal/shared/utils/response"
	"socialhub/internal/tokens"
)

type Controller struct {
	service   Service
	cookies   *tokens.Cookies
	baseURL   string
	validator *validator.Validate
}

// NewController builds the auth handlers. baseURL prefixes every emailed link.
func NewController(service Service, cookies *tokens.Cookies, baseURL string) *Controller {
	return &Controller{
		service:   service,
		cookies:   cookies,
		baseURL:   strings.TrimRight(baseURL, "/"),
		validator: newValidator(),
	}
}

// newValidator adds bcryptmax, a byte-length cap matching what bcrypt accepts
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("bcryptmax", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= security.MaxPasswordBytes
	})
	return v
}

func (c *Controller) bind(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBind(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return false
	}
	if err := c.validator.Struct(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return false
	}
	return true
}

// fail answers with the mapped status; the cause goes on ctx.Errors for the request logger
func (c *Controller) fail(ctx *gin.Context, err error) {
	status, message := statusOf(err)
	_ = ctx.Error(err)
	response.RespondJSON(ctx, "error", status, message, nil, nil)
}

func (c *Controller) Login(ctx *gin.Context) {
	var req LoginRequest
	if !c.bind(ctx, &req) {
		return
	}

	session, err := c.service.Login(ctx.Request.Context(), &req)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	c.cookies.SetPair(ctx.Writer, session.Tokens)
	response.RespondJSON(ctx, "success", http.StatusOK, "Login successful", toUserResponse(session.User), nil)
}

// Logout only drops the cookies; issued tokens stay valid until they expire
func (c *Controller) Logout(ctx *gin.Context) {
	c.cookies.Clear(ctx.Writer)
	response.RespondJSON(ctx, "success", http.StatusOK, "Logged out successfully", nil, nil)
}

func (c *Controller) Register(ctx *gin.Context) {
	var req RegisterRequest
	if !c.bind(ctx, &req) {
		return
	}

	if err := c.service.StartRegistration(ctx.Request.Context(), &req, c.baseURL); err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusAccepted, "Check your email to confirm registration", nil, nil)
}

func (c *Controller) Confirm(ctx *gin.Context) {
	session, err := c.service.ConfirmRegistration(ctx.Request.Context(), ctx.Query("token"))
	if err != nil {
		c.fail(ctx, err)
		return
	}

	c.cookies.SetPair(ctx.Writer, session.Tokens)
	response.RespondJSON(ctx, "success", http.StatusCreated, "Registration confirmed", toUserResponse(session.User), nil)
}

func (c *Controller) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest
	if !c.bind(ctx, &req) {
		return
	}

	if err := c.service.ForgotPassword(ctx.Request.Context(), &req, c.baseURL); err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusAccepted, "Check your email for a reset link", nil, nil)
}

func (c *Controller) ResetPasswordForm(ctx *gin.Context) {
	email, err := c.service.PeekReset(ctx.Request.Context(), ctx.Query("token"))
	if err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Reset link is valid", ResetPreviewResponse{Email: email}, nil)
}

func (c *Controller) ResetPassword(ctx *gin.Context) {
	// the token may come from the link query or from the body
	req := ResetPasswordRequest{Token: ctx.Query("token")}
	if !c.bind(ctx, &req) {
		return
	}

	session, err := c.service.ResetPassword(ctx.Request.Context(), &req)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	c.cookies.SetPair(ctx.Writer, session.Tokens)
	response.RespondJSON(ctx, "success", http.StatusOK, "Password changed successfully", toUserResponse(session.User), nil)
}

func (c *Controller) GetMe(ctx *gin.Context) {
	user, ok := CurrentUser(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "User data retrieved successfully", toUserResponse(user), nil)
}
