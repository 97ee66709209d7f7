package orchestrator

import (
	"context"
)

// NotificationChannel is told about every finished Run.
type NotificationChannel interface {
	Notify(ctx context.Context, stats *BackupStats) error
}

// RegisterNotificationChannel adds a channel to run after each backup.
func (o *Orchestrator) RegisterNotificationChannel(channel NotificationChannel) {
	if channel == nil {
		return
	}
	o.notificationChannels = append(o.notificationChannels, channel)
}

// dispatchNotifications runs every channel; failures never change the result.
func (o *Orchestrator) dispatchNotifications(ctx context.Context, stats *BackupStats) {
	if len(o.notificationChannels) == 0 {
		o.logger.Skip("Notifications: none configured")
		return
	}
	for _, channel := range o.notificationChannels {
		if err := channel.Notify(ctx, stats); err != nil {
			o.logger.Warning("Notification failed: %v", err)
		}
	}
}
