package model

// Content is a post, page or any other body of markup that can embed media
type Content struct {
	ID         uint   `gorm:"primaryKey;autoIncrement;index" json:"id"`
	UserID     string `gorm:"index" json:"-"`
	Type       string `gorm:"index;not null;default:post" json:"type"`
	Title      string `json:"title"`
	Body       string `gorm:"type:text" json:"body"`
	References IDSet  `gorm:"column:referenced_ids" json:"references"`
	CreatedAt  int64  `gorm:"not null" json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Option is an installation wide key/value pair
type Option struct {
	Name  string `gorm:"primaryKey"`
	Value string `gorm:"type:text"`
}
