package worker

import (
	"github.com/spec-kit/ombudsman-service/internal/service"
)

// StartNotificationWorker registers the automation forwarding handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
