package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// RoomKey names a delivery scope. Two forms exist:
//
//	user:<uuid>            — a user's inbox, for authored-content notifications
//	content:<type>:<id>    — the viewer group of one piece of content
type RoomKey string

// UserRoom returns the inbox room key for a user.
func UserRoom(userID uuid.UUID) RoomKey {
	return RoomKey("user:" + userID.String())
}

// ContentRoom returns the viewer room key for a piece of content.
func ContentRoom(contentType ContentType, contentID int64) RoomKey {
	return RoomKey(fmt.Sprintf("content:%s:%d", contentType, contentID))
}

// IsUserRoom reports whether the key names a user inbox.
func (k RoomKey) IsUserRoom() bool {
	return strings.HasPrefix(string(k), "user:")
}

// IsContentRoom reports whether the key names a content viewer group.
func (k RoomKey) IsContentRoom() bool {
	return strings.HasPrefix(string(k), "content:")
}

// ParseContentRoom extracts the content type and ID from a content room
// key. It returns false for user rooms and malformed keys.
func (k RoomKey) ParseContentRoom() (ContentType, int64, bool) {
	parts := strings.SplitN(string(k), ":", 3)
	if len(parts) != 3 || parts[0] != "content" {
		return "", 0, false
	}
	ct := ContentType(parts[1])
	if !ct.Valid() {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return ct, id, true
}
