package domain

import "time"

type Bucket struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	IsDefault   bool      `json:"is_default"`
	EmailCount  int       `json:"email_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BucketPatch carries the fields of an update; nil means unchanged.
type BucketPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

type BucketDeletion struct {
	EmailsToReclassify int `json:"emails_to_reclassify"`
}

const DefaultBucketColor = "#6B7280"

// DefaultBuckets are seeded for every user and cannot be renamed or deleted.
var DefaultBuckets = []Bucket{
	{Name: "Important", Description: "Emails requiring action or from known contacts", Color: "#EF4444", IsDefault: true},
	{Name: "Can Wait", Description: "Low priority, non-urgent emails", Color: "#F59E0B", IsDefault: true},
	{Name: "Auto-archive", Description: "Receipts, confirmations, automated notifications", Color: "#10B981", IsDefault: true},
	{Name: "Newsletter", Description: "Promotional content, marketing, bulk emails", Color: "#6366F1", IsDefault: true},
	{Name: "Social", Description: "Social media notifications", Color: "#EC4899", IsDefault: true},
}
