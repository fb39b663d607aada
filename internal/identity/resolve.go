package identity

import (
	"github.com/rafid/crosspost/internal/model"
	"github.com/rafid/crosspost/internal/provider"
)

// merge builds the one authoritative User from a session and an optional
// profile. This is the only place a User is constructed: every attribute is
// resolved through the same ordered fallback — profile attribute, else
// provider session metadata, else literal default — so an identity is always
// complete or not produced at all.
func merge(sess *provider.Session, prof *provider.Profile) *model.User {
	var profName, profRole, profAvatar string
	if prof != nil {
		profName = prof.Name
		profRole = prof.Role
		profAvatar = prof.AvatarURL
	}

	return &model.User{
		ID:        sess.UserID,
		Email:     sess.Email,
		Name:      firstNonEmpty(profName, sess.Metadata.FullName, model.DefaultDisplayName),
		Role:      firstNonEmpty(profRole, model.DefaultRole),
		AvatarURL: firstNonEmpty(profAvatar, sess.Metadata.AvatarURL, model.DefaultAvatarURL),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
