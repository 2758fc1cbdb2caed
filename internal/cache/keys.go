package cache

import "strings"

const (
	keyPrefix = "linova:"

	ModulesKey      = keyPrefix + "modules"
	LessonCountsKey = keyPrefix + "lessonCounts"
	LessonModuleKey = keyPrefix + "lessonModule"

	// AnonymousUser namespaces user-scoped keys when nobody is signed in.
	AnonymousUser = "anon"
)

func userScope(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return AnonymousUser
	}
	return userID
}

func ProgressKey(userID string) string {
	return keyPrefix + "progress:" + userScope(userID)
}

func UnlocksKey(userID string) string {
	return keyPrefix + "unlocks:" + userScope(userID)
}

// GlobalKeys are the identity-independent catalog keys.
func GlobalKeys() []string {
	return []string{ModulesKey, LessonCountsKey, LessonModuleKey}
}

// UserKeys are the keys scoped to one identity.
func UserKeys(userID string) []string {
	return []string{ProgressKey(userID), UnlocksKey(userID)}
}

// HydrationKeys lists everything read when hydrating state for userID.
func HydrationKeys(userID string) []string {
	return append(GlobalKeys(), UserKeys(userID)...)
}
