package types

import (
	"encoding/json"
	"fmt"
)

// Decode parses one encoded line into the entity's record type. The returned
// record is always a value, never a pointer.
func Decode(e Entity, line []byte) (Record, error) {
	switch e {
	case EntityLikes:
		var r LikeEvent
		err := json.Unmarshal(line, &r)
		return r, err
	case EntityReviews:
		var r Review
		err := json.Unmarshal(line, &r)
		return r, err
	case EntityReviewReactions:
		var r ReviewReaction
		err := json.Unmarshal(line, &r)
		return r, err
	case EntityBookmarks:
		var r Bookmark
		err := json.Unmarshal(line, &r)
		return r, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, e)
	}
}

// Encode renders a record as one line without the trailing newline.
func Encode(r Record) ([]byte, error) {
	return json.Marshal(r)
}
