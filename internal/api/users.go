package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"partner-portal/internal/rbac"
	"partner-portal/pkg/utils"
)

// MinPasswordLength applies to temporary and reset passwords set by administrators.
const MinPasswordLength = 15

var ErrPasswordTooShort error = &InputError{Msg: fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength)}

type User struct {
	ID         string      `json:"id" validate:"required"`
	Email      string      `json:"email"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Role       rbac.Role   `json:"role" validate:"required,oneof=AZOR COVENANT"`
	IsActive   *bool       `json:"is_active,omitempty"`
	MFAEnabled bool        `json:"mfa_enabled"`
	CreatedAt  *utils.Time `json:"created_at,omitempty"`
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Me fetches the live user record for the bound credentials.
func (c *Client) Me(ctx context.Context) (User, error) {
	raw, err := c.get(ctx, "/users/me", nil)
	if err != nil {
		return User{}, err
	}
	return decodeOne[User]("user", raw)
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return invalid("Enter both current and new password.", nil)
	}
	raw, err := c.send(ctx, http.MethodPost, "/users/change-password", map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	})
	if err != nil {
		return err
	}
	return ok("change-password", raw)
}

// ResetMFA removes the caller's own authenticator enrollment.
func (c *Client) ResetMFA(ctx context.Context) error {
	raw, err := c.send(ctx, http.MethodPost, "/users/mfa/reset", map[string]any{})
	if err != nil {
		return err
	}
	return ok("mfa-reset", raw)
}

type NewUser struct {
	Email     string    `json:"email" validate:"required,email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      rbac.Role `json:"role" validate:"required,oneof=AZOR COVENANT"`
	Password  string    `json:"password" validate:"required"`
}

// UserPatch carries only the fields to change.
type UserPatch struct {
	FirstName *string    `json:"first_name,omitempty"`
	LastName  *string    `json:"last_name,omitempty"`
	Role      *rbac.Role `json:"role,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

func (p UserPatch) empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Role == nil && p.IsActive == nil
}

var ErrNoChanges error = &InputError{Msg: "Nothing to update."}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

// AdminUsers lists users. A missing or unauthorized endpoint yields an empty page.
func (c *Client) AdminUsers(ctx context.Context, limit, offset int) (Page[User], error) {
	raw, err := c.get(ctx, "/admin/users", pageQuery(limit, offset))
	if err != nil {
		if emptyOnMissing(err) {
			return Page[User]{Items: []User{}}, nil
		}
		return Page[User]{}, err
	}
	return decodePage[User]("users", raw)
}

func (c *Client) AdminCreateUser(ctx context.Context, u NewUser) (User, error) {
	u.Email = strings.TrimSpace(u.Email)
	if len(u.Password) < MinPasswordLength {
		return User{}, ErrPasswordTooShort
	}
	if err := validate.Struct(u); err != nil {
		return User{}, invalid(fieldMessage(err, "user"), err)
	}
	raw, err := c.send(ctx, http.MethodPost, "/admin/users", u)
	if err != nil {
		return User{}, err
	}
	return decodeOne[User]("user", raw)
}

func (c *Client) AdminUpdateUser(ctx context.Context, id string, p UserPatch) (User, error) {
	if p.empty() {
		return User{}, ErrNoChanges
	}
	if p.Role != nil && !p.Role.Valid() {
		return User{}, invalid(fmt.Sprintf("Unknown role %q.", *p.Role), nil)
	}
	raw, err := c.send(ctx, http.MethodPatch, "/admin/users/"+url.PathEscape(id), p)
	if err != nil {
		return User{}, err
	}
	return decodeOne[User]("user", raw)
}

func (c *Client) AdminDeleteUser(ctx context.Context, id string) error {
	raw, err := c.send(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return ok("user-delete", raw)
}

// AdminResetPassword sets password when given, otherwise asks the backend to generate and email one.
func (c *Client) AdminResetPassword(ctx context.Context, id, password string) error {
	body := map[string]string{"mode": "generate"}
	if password != "" {
		if len(password) < MinPasswordLength {
			return ErrPasswordTooShort
		}
		body = map[string]string{"mode": "manual", "password": password}
	}
	raw, err := c.send(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(id)+"/reset-password", body)
	if err != nil {
		return err
	}
	return ok("password-reset", raw)
}

func (c *Client) AdminResetUserMFA(ctx context.Context, id string) error {
	raw, err := c.send(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(id)+"/mfa/reset", map[string]any{})
	if err != nil {
		return err
	}
	return ok("mfa-reset", raw)
}
