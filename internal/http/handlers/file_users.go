// JSON-file user HTTP handlers.
//
// This file exposes REST endpoints under /users, backed by a JSON file:
//   - GET    /users
//   - GET    /users/{id}
//   - POST   /users
//   - PUT    /users/{id}   (full replace)
//   - PATCH  /users/{id}   (partial update)
//   - DELETE /users/{id}   (returns the removed record)
//
// Ids are positive integers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/services"
	"github.com/tbourn/go-clinic-api/internal/validate"
)

// FileUserService defines the JSON-file user operations consumed by the
// handlers.
type FileUserService interface {
	List(ctx context.Context) ([]domain.FileUser, error)
	Get(ctx context.Context, id int) (*domain.FileUser, error)
	Create(ctx context.Context, name, email string) (*domain.FileUser, error)
	Replace(ctx context.Context, id int, name, email string) (*domain.FileUser, error)
	Patch(ctx context.Context, id int, p services.FileUserPatch) (*domain.FileUser, error)
	Delete(ctx context.Context, id int) (*domain.FileUser, error)
}

// FileUserHandlers groups the /users endpoints.
type FileUserHandlers struct {
	svc FileUserService
}

// NewFileUserHandlers binds the handlers to svc.
func NewFileUserHandlers(svc FileUserService) *FileUserHandlers {
	return &FileUserHandlers{svc: svc}
}

// FileUserRequest is the JSON payload for POST and PUT /users.
type FileUserRequest struct {
	Name  string `json:"name" example:"Ana García"`
	Email string `json:"email" example:"ana@example.com"`
}

// FileUserData wraps a single user.
type FileUserData struct {
	User *domain.FileUser `json:"user"`
}

// FileUsersData wraps a list of users.
type FileUsersData struct {
	Users []domain.FileUser `json:"users"`
}

// List godoc
// @ID          listUsers
// @Summary     List users
// @Tags        Users
// @Produce     json
// @Param       page       query  int  false  "Page number"     minimum(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.Envelope{data=handlers.FileUsersData}
// @Failure     404  {object}  middleware.ErrorBody  "Storage file missing"
// @Router      /users [get]
func (h *FileUserHandlers) List(c *gin.Context) error {
	users, err := h.svc.List(c.Request.Context())
	if err != nil {
		return err
	}
	users = paginate(c, users)
	list(c, len(users), FileUsersData{Users: users})
	return nil
}

// Get godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Produce     json
// @Param       id   path      int  true  "User ID"  minimum(1)
// @Success     200  {object}  handlers.Envelope{data=handlers.FileUserData}
// @Failure     400  {object}  middleware.ErrorBody  "Invalid id"
// @Failure     404  {object}  middleware.ErrorBody  "Not found"
// @Router      /users/{id} [get]
func (h *FileUserHandlers) Get(c *gin.Context) error {
	id, err := validate.ParseIntID(c.Param("id"))
	if err != nil {
		return err
	}
	u, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "", FileUserData{User: u})
	return nil
}

// Create godoc
// @ID          createUser
// @Summary     Create a user
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.FileUserRequest  true  "Name and email"
// @Success     201   {object}  handlers.Envelope{data=handlers.FileUserData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     409   {object}  middleware.ErrorBody  "Email taken"
// @Router      /users [post]
func (h *FileUserHandlers) Create(c *gin.Context) error {
	var req FileUserRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Create(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		return err
	}
	ok(c, http.StatusCreated, "Usuario creado exitosamente", FileUserData{User: u})
	return nil
}

// Replace godoc
// @ID          replaceUser
// @Summary     Replace a user
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       id    path      int                       true  "User ID"  minimum(1)
// @Param       body  body      handlers.FileUserRequest  true  "Name and email"
// @Success     200   {object}  handlers.Envelope{data=handlers.FileUserData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     404   {object}  middleware.ErrorBody  "Not found"
// @Failure     409   {object}  middleware.ErrorBody  "Email taken"
// @Router      /users/{id} [put]
func (h *FileUserHandlers) Replace(c *gin.Context) error {
	id, err := validate.ParseIntID(c.Param("id"))
	if err != nil {
		return err
	}
	var req FileUserRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Replace(c.Request.Context(), id, req.Name, req.Email)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Usuario reemplazado exitosamente", FileUserData{User: u})
	return nil
}

// Patch godoc
// @ID          patchUser
// @Summary     Update a user
// @Description Updates name and/or email; at least one is required.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       id    path      int                     true  "User ID"  minimum(1)
// @Param       body  body      services.FileUserPatch  true  "Fields to change"
// @Success     200   {object}  handlers.Envelope{data=handlers.FileUserData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     404   {object}  middleware.ErrorBody  "Not found"
// @Failure     409   {object}  middleware.ErrorBody  "Email taken"
// @Router      /users/{id} [patch]
func (h *FileUserHandlers) Patch(c *gin.Context) error {
	id, err := validate.ParseIntID(c.Param("id"))
	if err != nil {
		return err
	}
	var p services.FileUserPatch
	if err := bindJSON(c, &p); err != nil {
		return err
	}
	u, err := h.svc.Patch(c.Request.Context(), id, p)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Usuario actualizado exitosamente", FileUserData{User: u})
	return nil
}

// Delete godoc
// @ID          deleteUser
// @Summary     Delete a user
// @Tags        Users
// @Produce     json
// @Param       id   path      int  true  "User ID"  minimum(1)
// @Success     200  {object}  handlers.Envelope{data=handlers.FileUserData}
// @Failure     400  {object}  middleware.ErrorBody  "Invalid id"
// @Failure     404  {object}  middleware.ErrorBody  "Not found"
// @Router      /users/{id} [delete]
func (h *FileUserHandlers) Delete(c *gin.Context) error {
	id, err := validate.ParseIntID(c.Param("id"))
	if err != nil {
		return err
	}
	u, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Usuario eliminado exitosamente", FileUserData{User: u})
	return nil
}
