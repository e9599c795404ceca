package domain

import (
	"strings"
	"time"
)

// Category classifies a resource listing.
type Category string

// Known categories. Anything else is shown as CategoryOther.
const (
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategorySoftware Category = "software"
	CategoryGames    Category = "games"
	CategoryOther    Category = "other"
)

// Categories lists every known category in display order.
var Categories = []Category{CategoryVideo, CategoryAudio, CategorySoftware, CategoryGames, CategoryOther}

// ParseCategory normalizes s to a known category, defaulting to CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// Wire field names of a resource value in the keyed store.
// These match the records written by the browser client.
const (
	FieldName        = "name"
	FieldMagnet      = "magnet"
	FieldCategory    = "category"
	FieldSize        = "size"
	FieldDescription = "description"
	FieldUploadedAt  = "uploadedAt"
	FieldUploadedBy  = "uploadedBy"
	FieldOwnerPub    = "ownerPub"
)

// Resource is a published listing as seen by readers of the public index.
type Resource struct {
	UploadedAt  time.Time `json:"uploaded_at"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Magnet      string    `json:"magnet"`
	Category    Category  `json:"category"`
	Size        string    `json:"size,omitempty"`
	Description string    `json:"description,omitempty"`
	UploadedBy  string    `json:"uploaded_by"`
	OwnerPub    string    `json:"owner_pub"`
}

// Displayable reports whether the record is complete enough to be listed.
// Records missing a name or magnet are treated as tombstoned.
func (r *Resource) Displayable() bool {
	return r.Name != "" && r.Magnet != ""
}

// OwnedBy reports whether the identity may retract this record.
func (r *Resource) OwnedBy(ident Identity) bool {
	return ident.PublicKey != "" && r.OwnerPub == ident.PublicKey
}

// ResourceFromFields builds a Resource out of a merged wire record.
// Fields with an unexpected type are left empty.
func ResourceFromFields(id string, fields map[string]any) Resource {
	r := Resource{
		ID:          id,
		Name:        stringField(fields, FieldName),
		Magnet:      stringField(fields, FieldMagnet),
		Category:    ParseCategory(stringField(fields, FieldCategory)),
		Size:        stringField(fields, FieldSize),
		Description: stringField(fields, FieldDescription),
		UploadedBy:  stringField(fields, FieldUploadedBy),
		OwnerPub:    stringField(fields, FieldOwnerPub),
	}
	if ms, ok := numberField(fields, FieldUploadedAt); ok {
		r.UploadedAt = time.UnixMilli(ms)
	}
	return r
}

// Fields returns the wire representation written to the keyed store.
// Optional fields are omitted when empty.
func (r *Resource) Fields() map[string]any {
	fields := map[string]any{
		FieldName:       r.Name,
		FieldMagnet:     r.Magnet,
		FieldCategory:   string(r.Category),
		FieldUploadedAt: r.UploadedAt.UnixMilli(),
		FieldUploadedBy: r.UploadedBy,
		FieldOwnerPub:   r.OwnerPub,
	}
	if r.Size != "" {
		fields[FieldSize] = r.Size
	}
	if r.Description != "" {
		fields[FieldDescription] = r.Description
	}
	return fields
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func numberField(fields map[string]any, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
