package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/shop-api/internal/core/domain"
)

type CreateUserHTTPRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

type RenameUserHTTPRequest struct {
	UserID      string `json:"userId"`
	NewUsername string `json:"newUsername"`
}

type userResponse struct {
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
}

func (h *HTTPHandler) GetUsers(c *gin.Context) {
	if id := c.Query("userId"); id != "" {
		user, err := h.users.GetUser(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err, "Error in fetching users")
			return
		}
		c.JSON(http.StatusOK, user)
		return
	}

	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Error in fetching users")
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *HTTPHandler) CreateUser(c *gin.Context) {
	var req CreateUserHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), domain.User{
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.fail(c, err, "Error in creating user")
		return
	}
	c.JSON(http.StatusCreated, userResponse{Message: "User is created", User: user})
}

func (h *HTTPHandler) RenameUser(c *gin.Context) {
	var req RenameUserHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.users.RenameUser(c.Request.Context(), req.UserID, req.NewUsername)
	if err != nil {
		h.fail(c, err, "Error in updating user")
		return
	}
	c.JSON(http.StatusOK, userResponse{Message: "User is updated successfully", User: user})
}

func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	user, err := h.users.DeleteUser(c.Request.Context(), c.Query("userId"))
	if err != nil {
		h.fail(c, err, "Error in deleting user")
		return
	}
	c.JSON(http.StatusOK, userResponse{Message: "User is deleted successfully", User: user})
}
