package handlers

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/services"
	"github.com/example/lesspay/internal/utils"
)

// TokenIssuer issues access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID uuid.UUID, role string) (string, error)
}

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db     *gorm.DB
	tokens TokenIssuer
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens}
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Register creates a new user account.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = normalizeEmail(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.FullName == "" || req.Email == "" || req.Phone == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return &services.ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return &services.ValidationError{Field: "password", Message: err.Error()}
	}

	var existing models.User
	err := h.db.WithContext(c.UserContext()).
		Where("email = ? OR phone = ?", req.Email, req.Phone).
		First(&existing).Error
	if err == nil {
		return fiber.NewError(fiber.StatusConflict, "user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		return err
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user":    userResponse(user),
		"token":   token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates an existing user by email or phone.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	query := h.db.WithContext(c.UserContext())
	switch {
	case strings.TrimSpace(req.Email) != "":
		query = query.Where("email = ?", normalizeEmail(req.Email))
	case strings.TrimSpace(req.Phone) != "":
		query = query.Where("phone = ?", strings.TrimSpace(req.Phone))
	default:
		return fiber.NewError(fiber.StatusBadRequest, "email or phone is required")
	}

	var user models.User
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    userResponse(user),
		"token":   token,
	})
}

func userResponse(user models.User) fiber.Map {
	return fiber.Map{
		"id":           user.ID,
		"full_name":    user.FullName,
		"email":        user.Email,
		"phone":        user.Phone,
		"role":         user.Role,
		"bank_details": user.BankDetails,
		"created_at":   user.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
