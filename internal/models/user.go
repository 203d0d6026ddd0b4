package models

// Roles understood by the auth middleware.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account that requests payment links.
type User struct {
	BaseModel
	FullName     string        `json:"full_name"`
	Email        string        `gorm:"uniqueIndex" json:"email"`
	Phone        string        `gorm:"uniqueIndex" json:"phone"`
	PasswordHash string        `json:"-"`
	Role         string        `gorm:"default:user" json:"role"`
	BankDetails  BankDetails   `gorm:"embedded;embeddedPrefix:bank_" json:"bank_details"`
	Transactions []Transaction `gorm:"foreignKey:OwnerID" json:"transactions,omitempty"`
}

// BankDetails holds the payout account a user settles to.
type BankDetails struct {
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number"`
	IFSCCode      string `json:"ifsc_code"`
	BankName      string `json:"bank_name"`
}
