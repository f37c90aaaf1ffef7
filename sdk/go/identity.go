package lumen

import (
	"github.com/google/uuid"
)

// newAppID derives the application identity: the configured app name plus a
// freshly generated random suffix. The identity is constant for the life of
// the connector and included in every outbound request.
func newAppID(appName string) string {
	return appName + "-" + uuid.New().String()
}
