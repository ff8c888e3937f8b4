package model

// Tag records that a user appears in a photo. It is the bridge row of the
// many-to-many relation between photos and users.
type Tag struct {
	PhotoID string `json:"photoID"`
	UserID  string `json:"userID"` // GitHubLogin of the tagged user
}
