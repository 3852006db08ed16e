package redis

import "screenshare/internal/core/domain"

const keyPrefix = "screenshare:"

func sessionKey(id domain.SessionID) string {
	return keyPrefix + "session:" + string(id)
}

func activeSessionsKey() string {
	return keyPrefix + "session:active"
}

func publisherActiveKey(publisherID domain.UserID) string {
	return keyPrefix + "publisher:" + string(publisherID) + ":active"
}

func permissionKey(id domain.PermissionID) string {
	return keyPrefix + "permission:" + string(id)
}

func subscriberPermissionsKey(subscriberID domain.UserID) string {
	return keyPrefix + "subscriber:" + string(subscriberID) + ":permissions"
}

func permissionPairKey(subscriberID, publisherID domain.UserID) string {
	return keyPrefix + "permission:pair:" + string(subscriberID) + ":" + string(publisherID)
}
