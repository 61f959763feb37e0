package model

import "slices"

type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleEditor        Role = "editor"
	RoleAuthor        Role = "author"
	RoleContributor   Role = "contributor"
	RoleSubscriber    Role = "subscriber"
)

// Capabilities checked by the media endpoints
const (
	CapUploadFiles   = "upload_files"
	CapEditPost      = "edit_post"
	CapEditOthers    = "edit_others_posts"
	CapManageOptions = "manage_options"
)

var roleCaps = map[Role][]string{
	RoleAdministrator: {CapUploadFiles, CapEditPost, CapEditOthers, CapManageOptions},
	RoleEditor:        {CapUploadFiles, CapEditPost, CapEditOthers},
	RoleAuthor:        {CapUploadFiles, CapEditPost},
	RoleContributor:   {CapEditPost},
	RoleSubscriber:    {},
}

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"unique; not null"`
	PasswordHash string `gorm:"not null"`
	Role         Role   `gorm:"not null;default:subscriber"`
	CreatedAt    int64  `gorm:"not null"`
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	_, ok := roleCaps[r]
	return ok
}

// Can reports whether the role grants the capability
func (r Role) Can(capability string) bool {
	return slices.Contains(roleCaps[r], capability)
}

// CanEdit reports whether a user with role r and id userID may edit an
// item owned by ownerID
func (r Role) CanEdit(userID, ownerID string) bool {
	if r.Can(CapEditOthers) {
		return true
	}

	return r.Can(CapEditPost) && userID != "" && userID == ownerID
}
