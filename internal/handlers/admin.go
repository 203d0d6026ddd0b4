package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/utils"
)

// AdminHandler serves back-office reporting endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// DashboardStats returns aggregate collection and payout figures.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalTransactions int64
	if err := db.Model(&models.Transaction{}).Count(&totalTransactions).Error; err != nil {
		return err
	}

	var byStatus []statusCount
	if err := db.Model(&models.Transaction{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return err
	}

	var byTransfer []statusCount
	if err := db.Model(&models.Transaction{}).
		Select("transfer_status as status, count(*) as count").
		Group("transfer_status").
		Scan(&byTransfer).Error; err != nil {
		return err
	}

	// Collected: everything the gateway confirmed.
	collected, err := sumAmount(db.Model(&models.Transaction{}).
		Where("status = ?", models.PaymentCompleted), "amount")
	if err != nil {
		return err
	}

	// Owed: confirmed but not yet settled to the user.
	owed, err := sumAmount(db.Model(&models.Transaction{}).
		Where("status = ? AND transfer_status = ?", models.PaymentCompleted, models.TransferPending), "receive_amount")
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_users":              totalUsers,
			"total_transactions":       totalTransactions,
			"transactions_by_status":   countsByStatus(byStatus),
			"transactions_by_transfer": countsByStatus(byTransfer),
			"total_collected":          collected,
			"pending_payout_amount":    owed,
		},
	})
}

// ListAllUsers returns all registered users with pagination, search and
// per-user collection totals.
func (h *AdminHandler) ListAllUsers(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())
	pg := utils.ParsePagination(c)
	query := db.Model(&models.User{})

	if search := strings.ToLower(strings.TrimSpace(c.Query("search"))); search != "" {
		like := "%" + search + "%"
		query = query.Where(
			"LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	type userStats struct {
		OwnerID          string
		TransactionCount int64
		Collected        decimal.Decimal
	}

	var stats []userStats
	if err := db.Model(&models.Transaction{}).
		Select("owner_id, count(*) as transaction_count, COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) as collected", models.PaymentCompleted).
		Group("owner_id").
		Scan(&stats).Error; err != nil {
		return err
	}

	statsMap := make(map[string]userStats, len(stats))
	for _, s := range stats {
		statsMap[s.OwnerID] = s
	}

	type adminUser struct {
		models.User
		TransactionCount int64           `json:"transaction_count"`
		Collected        decimal.Decimal `json:"collected"`
	}

	result := make([]adminUser, len(users))
	for i, u := range users {
		result[i] = adminUser{User: u, Collected: decimal.Zero}
		if s, ok := statsMap[u.ID.String()]; ok {
			result[i].TransactionCount = s.TransactionCount
			result[i].Collected = s.Collected
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
		"meta":    pg.Meta(total),
	})
}

func sumAmount(query *gorm.DB, column string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := query.Select("COALESCE(SUM(" + column + "), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

type statusCount struct {
	Status string
	Count  int64
}

func countsByStatus(rows []statusCount) map[string]int64 {
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out
}
