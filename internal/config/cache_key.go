package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// DeviceSessionKey returns the cache key for the auth session persisted by a device.
func (r *CacheKeyStruct) DeviceSessionKey(deviceID string) string {
	return fmt.Sprintf("oxedro:device:%s:session", deviceID)
}

var CacheKey = NewCacheKeyStruct()
