package model

import "time"

// Platform identifies the social network a post is scheduled for.
type Platform string

// The fixed set of platforms the scheduler knows about.
const (
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
)

// Status of a scheduled post.
const (
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Post is a content item scheduled for publication on a platform.
//
// ID, CreatedAt, and Status are stamped by the store on creation and
// override anything the caller supplied. ID and CreatedAt are immutable
// thereafter; Update refuses to touch them.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Platform  Platform  `json:"platform"`
	Media     string    `json:"media,omitempty"` // inline data URL, or empty
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"` // defaults to Start + 1h when the draft omits it
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// PostDraft is the caller-supplied intent to create a post. The store stamps
// everything else.
//
// End is validated against Start when present: the scheduler treats an
// inverted window as caller error rather than silently storing it.
type PostDraft struct {
	Title    string    `json:"title" validate:"required,max=200"`
	Content  string    `json:"content" validate:"max=10000"`
	Platform Platform  `json:"platform" validate:"required,oneof=instagram linkedin whatsapp facebook twitter"`
	Media    string    `json:"media"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"omitempty,gtfield=Start"`
}

// PostPatch carries a partial update. Nil fields are left untouched.
// There are deliberately no ID or CreatedAt fields here — those are
// immutable and silently dropped by the API layer if supplied.
type PostPatch struct {
	Title    *string    `json:"title"`
	Content  *string    `json:"content"`
	Platform *Platform  `json:"platform" validate:"omitempty,oneof=instagram linkedin whatsapp facebook twitter"`
	Media    *string    `json:"media"`
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	Status   *string    `json:"status" validate:"omitempty,oneof=scheduled published failed"`
}
