// Database-backed account HTTP handlers.
//
// This file exposes REST endpoints under /db-users:
//   - POST   /db-users/login          (issue a JWT)
//   - GET    /db-users                (list, authenticated, ETag support)
//   - GET    /db-users/{id}
//   - POST   /db-users                (register; roles other than USER need an ADMIN token)
//   - PATCH  /db-users/{id}           (email, username; role needs an ADMIN token)
//   - PATCH  /db-users/{id}/password
//   - DELETE /db-users/{id}
//
// Path ids are validated by middleware.ValidateUUIDParam before these run.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/http/middleware"
	"github.com/tbourn/go-clinic-api/internal/services"
)

const msgRoleAdminOnly = "Solo un administrador puede asignar roles"

// UserService defines account operations consumed by the handlers.
type UserService interface {
	Create(ctx context.Context, data map[string]any) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, id string, data map[string]any) (*domain.User, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	Delete(ctx context.Context, id string) error
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
}

// UserHandlers groups the /db-users endpoints.
type UserHandlers struct {
	svc UserService
}

// NewUserHandlers binds the handlers to svc.
func NewUserHandlers(svc UserService) *UserHandlers {
	return &UserHandlers{svc: svc}
}

// LoginRequest is the JSON payload for POST /db-users/login.
type LoginRequest struct {
	Email    string `json:"email" example:"ana@example.com"`
	Password string `json:"password" example:"secreto123"`
}

// ChangePasswordRequest is the JSON payload for PATCH /db-users/{id}/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" example:"secreto123"`
	NewPassword     string `json:"newPassword" example:"otroSecreto456"`
}

// UserData wraps a single account.
type UserData struct {
	User *domain.User `json:"user"`
}

// UsersData wraps a list of accounts.
type UsersData struct {
	Users []domain.User `json:"users"`
}

// LoginData is returned by a successful login.
type LoginData struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// Login godoc
// @ID          loginDbUser
// @Summary     Log in
// @Description Verifies email and password and returns the account with a signed JWT.
// @Tags        DbUsers
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.Envelope{data=handlers.LoginData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     401   {object}  middleware.ErrorBody  "Invalid credentials"
// @Router      /db-users/login [post]
func (h *UserHandlers) Login(c *gin.Context) error {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	u, token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Inicio de sesión exitoso", LoginData{User: u, Token: token})
	return nil
}

// List godoc
// @ID          listDbUsers
// @Summary     List accounts
// @Description Returns every account, newest first. Supports weak ETag via If-None-Match.
// @Tags        DbUsers
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.Envelope{data=handlers.UsersData}
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  middleware.ErrorBody  "Missing or invalid token"
// @Router      /db-users [get]
func (h *UserHandlers) List(c *gin.Context) error {
	if svc, isDB := h.svc.(*services.UserService); isDB && notModified(c, svc.DB, "db-users", &domain.User{}) {
		return nil
	}
	users, err := h.svc.List(c.Request.Context())
	if err != nil {
		return err
	}
	users = paginate(c, users)
	list(c, len(users), UsersData{Users: users})
	return nil
}

// Get godoc
// @ID          getDbUser
// @Summary     Get an account
// @Tags        DbUsers
// @Produce     json
// @Param       id   path      string  true  "User ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.UserData}
// @Failure     400  {object}  middleware.ErrorBody  "Invalid id"
// @Failure     404  {object}  middleware.ErrorBody  "Not found"
// @Router      /db-users/{id} [get]
func (h *UserHandlers) Get(c *gin.Context) error {
	u, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "", UserData{User: u})
	return nil
}

// Create godoc
// @ID          createDbUser
// @Summary     Register an account
// @Description Creates an account with email, username, password and optional role (USER, ADMIN, DOCTOR, PATIENT). Any role other than USER requires an administrator token.
// @Tags        DbUsers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      object  true  "email, username, password, role"
// @Success     201   {object}  handlers.Envelope{data=handlers.UserData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     401   {object}  middleware.ErrorBody  "Role given without a valid token"
// @Failure     403   {object}  middleware.ErrorBody  "Role given by a non-administrator"
// @Failure     409   {object}  middleware.ErrorBody  "Email or username taken"
// @Router      /db-users [post]
func (h *UserHandlers) Create(c *gin.Context) error {
	data := map[string]any{}
	if err := bindJSON(c, &data); err != nil {
		return err
	}
	if err := authorizeRole(c, data, true); err != nil {
		return err
	}
	u, err := h.svc.Create(c.Request.Context(), data)
	if err != nil {
		return err
	}
	ok(c, http.StatusCreated, "Usuario creado exitosamente", UserData{User: u})
	return nil
}

// Update godoc
// @ID          updateDbUser
// @Summary     Update an account
// @Description Changes email, username and/or role. Other fields are ignored. Changing the role requires an administrator token.
// @Tags        DbUsers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string  true  "User ID (UUID)"  format(uuid)
// @Param       body  body      object  true  "email, username, role"
// @Success     200   {object}  handlers.Envelope{data=handlers.UserData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     401   {object}  middleware.ErrorBody  "Role given without a valid token"
// @Failure     403   {object}  middleware.ErrorBody  "Role given by a non-administrator"
// @Failure     404   {object}  middleware.ErrorBody  "Not found"
// @Failure     409   {object}  middleware.ErrorBody  "Email or username taken"
// @Router      /db-users/{id} [patch]
func (h *UserHandlers) Update(c *gin.Context) error {
	data := map[string]any{}
	if err := bindJSON(c, &data); err != nil {
		return err
	}
	if err := authorizeRole(c, data, false); err != nil {
		return err
	}
	u, err := h.svc.Update(c.Request.Context(), c.Param("id"), data)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Usuario actualizado exitosamente", UserData{User: u})
	return nil
}

// ChangePassword godoc
// @ID          changeDbUserPassword
// @Summary     Change password
// @Tags        DbUsers
// @Accept      json
// @Produce     json
// @Param       id    path      string                          true  "User ID (UUID)"  format(uuid)
// @Param       body  body      handlers.ChangePasswordRequest  true  "Current and new password"
// @Success     200   {object}  handlers.Envelope
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     401   {object}  middleware.ErrorBody  "Wrong current password"
// @Failure     404   {object}  middleware.ErrorBody  "Not found"
// @Router      /db-users/{id}/password [patch]
func (h *UserHandlers) ChangePassword(c *gin.Context) error {
	var req ChangePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request.Context(), c.Param("id"), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	ok(c, http.StatusOK, "Contraseña actualizada exitosamente", nil)
	return nil
}

// Delete godoc
// @ID          deleteDbUser
// @Summary     Delete an account
// @Description Administrators only.
// @Tags        DbUsers
// @Security    BearerAuth
// @Param       id   path    string  true  "User ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     400  {object} middleware.ErrorBody  "Invalid id"
// @Failure     401  {object} middleware.ErrorBody  "Missing or invalid token"
// @Failure     403  {object} middleware.ErrorBody  "Not an administrator"
// @Failure     404  {object} middleware.ErrorBody  "Not found"
// @Router      /db-users/{id} [delete]
func (h *UserHandlers) Delete(c *gin.Context) error {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		return err
	}
	noContent(c)
	return nil
}

// authorizeRole lets only administrators assign roles. Self-registration
// as USER stays open; any role in an update needs an ADMIN token.
func authorizeRole(c *gin.Context, data map[string]any, registering bool) error {
	v, present := data["role"]
	if !present {
		return nil
	}
	if registering {
		if role, _ := v.(string); strings.TrimSpace(role) == "" || strings.EqualFold(strings.TrimSpace(role), domain.RoleUser) {
			return nil
		}
	}
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		return apperr.Unauthorized("Token de acceso requerido")
	}
	if !strings.EqualFold(claims.Role, domain.RoleAdmin) {
		return apperr.Forbidden(msgRoleAdminOnly)
	}
	return nil
}
