package notifications

import (
	"net/url"
	"strings"
)

const (
	ConfirmPath       = "/api/v1/auth/confirm"
	ResetPasswordPath = "/api/v1/auth/reset-password"
)

// ConfirmationLink builds <base_url><path>?token=<token> for kind.
// Unknown kinds fall back to the confirm path.
func ConfirmationLink(kind Kind, baseURL, token string) string {
	path := ConfirmPath
	if kind == KindResetPassword {
		path = ResetPasswordPath
	}
	return strings.TrimRight(baseURL, "/") + path + "?token=" + url.QueryEscape(token)
}
