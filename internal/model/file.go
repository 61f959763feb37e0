// Package model defines database models
package model

import "gorm.io/datatypes"

// File is a media attachment. StoragePath and every path inside Meta are
// slash separated and relative to the upload root.
type File struct {
	ID                uint                                  `gorm:"primaryKey;autoIncrement;index" json:"id"`
	UserID            string                                `gorm:"index" json:"-"`
	StoragePath       string                                `gorm:"index" json:"-"`
	OriginalName      string                                `json:"name"`
	MimeType          string                                `json:"mime_type"`
	Size              int64                                 `json:"size"`
	Restricted        bool                                  `gorm:"index;default:false" json:"restricted"`
	ProtectedHash     *string                               `gorm:"uniqueIndex" json:"-"`
	Meta              datatypes.JSONType[Metadata]          `json:"-"`
	OriginalPath      *string                               `gorm:"index" json:"-"`
	OriginalSizePaths datatypes.JSONType[map[string]string] `json:"-"`
	URLMap            datatypes.JSONType[map[string]string] `json:"-"`
	UsedIn            IDSet                                 `json:"used_in"`
	RestrictAudit     datatypes.JSONType[*RestrictAudit]    `json:"-"`
	CreatedAt         int64                                 `gorm:"not null" json:"created_at"`
	UpdatedAt         int64                                 `json:"updated_at"`
}

// Metadata describes the primary file and its derived size variants
type Metadata struct {
	File   string        `json:"file"`
	Width  int           `json:"width,omitempty"`
	Height int           `json:"height,omitempty"`
	Sizes  []SizeVariant `json:"sizes,omitempty"`
	// Unscaled upload kept next to a "-scaled" primary
	OriginalImage string `json:"original_image,omitempty"`
}

// SizeVariant is a derived rendition stored in the primary's directory
type SizeVariant struct {
	Label    string `json:"label"`
	File     string `json:"file"` // basename only
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type"`
}

// RestrictAudit records the last restriction change made through the API
type RestrictAudit struct {
	Restrict   bool   `json:"restrict"`
	UserID     string `json:"user_id"`
	Date       int64  `json:"date"`
	UpdatePost bool   `json:"update_post"`
}

// Variant returns the size variant with the given label
func (m Metadata) Variant(label string) (SizeVariant, bool) {
	for _, v := range m.Sizes {
		if v.Label == label {
			return v, true
		}
	}

	return SizeVariant{}, false
}

// Hash returns the protected hash or an empty string when none was assigned
func (f *File) Hash() string {
	if f.ProtectedHash == nil {
		return ""
	}

	return *f.ProtectedHash
}

// URLRewrites returns a copy of the accumulated URL rewrite map
func (f *File) URLRewrites() map[string]string {
	out := map[string]string{}
	for k, v := range f.URLMap.Data() {
		out[k] = v
	}

	return out
}

// SizePathSnapshot returns a copy of the variant paths recorded before protection
func (f *File) SizePathSnapshot() map[string]string {
	out := map[string]string{}
	for k, v := range f.OriginalSizePaths.Data() {
		out[k] = v
	}

	return out
}
