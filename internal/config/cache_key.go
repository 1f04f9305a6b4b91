package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ParticipantSessionKey returns the cache key for a participant's
// single-device session JTI.
func (r *CacheKeyStruct) ParticipantSessionKey(participantID int) string {
	return fmt.Sprintf("login:%d", participantID)
}

var CacheKey = NewCacheKeyStruct()
