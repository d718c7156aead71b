package httpapi

import (
	"net/http"

	"partner-portal/internal/guard"

	"github.com/gin-gonic/gin"
)

func (h Handlers) AccountView(c *gin.Context) {
	user, _ := guard.UserFrom(c)
	c.JSON(http.StatusOK, gin.H{"user": user, "display_name": user.DisplayName()})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h Handlers) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := clientFrom(c).ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Password changed."})
}

func (h Handlers) ResetMFA(c *gin.Context) {
	if err := clientFrom(c).ResetMFA(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "MFA reset requested."})
}
