package models

import "time"

// Product is a supported product questions are filed against.
type Product struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Slug      string    `gorm:"size:50;unique;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic classifies a question within a product.
type Topic struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null;index" json:"title"`
	Slug      string    `gorm:"size:50;unique;not null" json:"slug"`
	ProductID *int      `json:"product_id,omitempty"`
	Product   *Product  `gorm:"foreignKey:ProductID" json:"-"`
	Visible   bool      `gorm:"default:true" json:"visible"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a free-form label on questions.
type Tag struct {
	ID   int    `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;unique;not null" json:"name"`
	Slug string `gorm:"size:100;unique;not null" json:"slug"`
}
