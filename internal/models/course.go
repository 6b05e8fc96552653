package models

import (
	"time"

	"gorm.io/gorm"
)

// Course represents a sellable online course. Content management lives in
// its own subsystem; the commerce core only needs existence and price.
type Course struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name        string  `gorm:"type:varchar(255)" json:"name"`
	Slug        string  `gorm:"type:varchar(255);uniqueIndex" json:"slug"`
	Description string  `gorm:"type:text" json:"description"`
	Price       float64 `gorm:"type:decimal(15,2)" json:"price"`
	IsPublished bool    `gorm:"default:false" json:"is_published"`

	// Relationships
	Enrollments  []Enrollment  `gorm:"foreignKey:CourseID" json:"enrollments,omitempty"`
	Transactions []Transaction `gorm:"foreignKey:CourseID" json:"transactions,omitempty"`
}
