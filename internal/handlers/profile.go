package handlers

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/lesspay/internal/middleware"
	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/services"
	"github.com/example/lesspay/internal/utils"
)

var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

// ProfileHandler manages user profile endpoints.
type ProfileHandler struct {
	db    *gorm.DB
	store services.TransactionStore
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB, store services.TransactionStore) *ProfileHandler {
	return &ProfileHandler{db: db, store: store}
}

// GetProfile returns authenticated user profile.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": userResponse(*user)})
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
}

// UpdateProfile updates user profile fields.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return &services.ValidationError{Field: "full_name", Message: "must not be empty"}
		}
		updates["full_name"] = name
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return &services.ValidationError{Field: "email", Message: "is not a valid address"}
		}
		if email != user.Email {
			if err := h.ensureUnique(c, "email", email, user.ID); err != nil {
				return err
			}
			updates["email"] = email
		}
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return &services.ValidationError{Field: "phone", Message: "must not be empty"}
		}
		if phone != user.Phone {
			if err := h.ensureUnique(c, "phone", phone, user.ID); err != nil {
				return err
			}
			updates["phone"] = phone
		}
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}

	if err := h.db.WithContext(c.UserContext()).Model(user).Updates(updates).Error; err != nil {
		return err
	}

	updated, err := loadUser(c, h.db, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": userResponse(*updated)})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword replaces the password after checking the current one.
func (h *ProfileHandler) ChangePassword(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if !utils.CheckPassword(user.PasswordHash, req.OldPassword) {
		return fiber.NewError(fiber.StatusUnauthorized, "current password is incorrect")
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		return &services.ValidationError{Field: "new_password", Message: err.Error()}
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := h.db.WithContext(c.UserContext()).Model(user).Update("password_hash", hash).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "password updated"})
}

// UpdateBankDetails stores the payout account.
func (h *ProfileHandler) UpdateBankDetails(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	var req models.BankDetails
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.AccountHolder = strings.TrimSpace(req.AccountHolder)
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.IFSCCode = strings.ToUpper(strings.TrimSpace(req.IFSCCode))
	req.BankName = strings.TrimSpace(req.BankName)

	switch {
	case req.AccountHolder == "":
		return &services.ValidationError{Field: "account_holder", Message: "is required"}
	case req.AccountNumber == "":
		return &services.ValidationError{Field: "account_number", Message: "is required"}
	case req.BankName == "":
		return &services.ValidationError{Field: "bank_name", Message: "is required"}
	case !ifscPattern.MatchString(req.IFSCCode):
		return &services.ValidationError{Field: "ifsc_code", Message: "is not a valid IFSC code"}
	}

	if err := h.db.WithContext(c.UserContext()).Model(user).
		Updates(&models.User{BankDetails: req}).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": req})
}

// ListTransactions returns the caller's transactions, newest first.
func (h *ProfileHandler) ListTransactions(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	page := utils.ParsePagination(c)
	filter := services.TransactionFilter{
		OwnerID: &userID,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
	if status := c.Query("status"); status != "" {
		parsed, err := services.ParsePaymentStatus(status)
		if err != nil {
			return err
		}
		filter.Status = parsed
	}

	txns, total, err := h.store.List(c.UserContext(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txns,
		"meta":    page.Meta(total),
	})
}

func (h *ProfileHandler) currentUser(c *fiber.Ctx) (*models.User, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return loadUser(c, h.db, userID)
}

func (h *ProfileHandler) ensureUnique(c *fiber.Ctx, column, value string, self uuid.UUID) error {
	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&models.User{}).
		Where(column+" = ? AND id <> ?", value, self).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fiber.NewError(fiber.StatusConflict, column+" is already in use")
	}
	return nil
}

func loadUser(c *fiber.Ctx, db *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.WithContext(c.UserContext()).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &services.NotFoundError{Resource: "user", ID: id.String()}
		}
		return nil, err
	}
	return &user, nil
}
