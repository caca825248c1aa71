package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	FirstName    string    `gorm:"not null"`
	LastName     string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	IsAdmin      bool      `gorm:"not null"`
	IsDeleted    bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type BookModel struct {
	ID              int       `gorm:"primaryKey"`
	Title           string    `gorm:"not null;index"`
	Authors         string    `gorm:"not null;index"`
	ISBN            string    `gorm:"column:isbn;not null"`
	LanguageCode    string    `gorm:"not null"`
	NumPages        int       `gorm:"not null"`
	PublicationDate time.Time `gorm:"not null"`
	Publisher       string    `gorm:"not null;index"`
	IsLoaned        bool      `gorm:"not null;default:false"`
}

func (BookModel) TableName() string { return "books" }

type LoanModel struct {
	ID             string    `gorm:"primaryKey"`
	BookID         int       `gorm:"not null;index"`
	UserID         string    `gorm:"not null;index"`
	LoanDate       time.Time `gorm:"not null"`
	ReturnDeadline time.Time `gorm:"not null"`
	IsReturned     bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (LoanModel) TableName() string { return "loans" }
