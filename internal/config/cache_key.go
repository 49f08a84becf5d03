package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's active login session.
func (r *CacheKeyStruct) UserSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// RegisterIPKey returns the counter key for registrations from an IP
// within the rolling window.
func (r *CacheKeyStruct) RegisterIPKey(ip string) string {
	return fmt.Sprintf("register:ip:%s", ip)
}

// RegisterDeviceKey returns the counter key for registrations from a
// device cookie within the rolling window.
func (r *CacheKeyStruct) RegisterDeviceKey(deviceID string) string {
	return fmt.Sprintf("register:device:%s", deviceID)
}

// LoginFailKey returns the failed-login counter key for an (ip, identifier)
// pair. The identifier is an email or national ID.
func (r *CacheKeyStruct) LoginFailKey(ip, identifier string) string {
	return fmt.Sprintf("login_fail:%s:%s", ip, identifier)
}

var CacheKey = NewCacheKeyStruct()
