package app

import (
	"context"
	"errors"
	"fmt"

	"vault-guard/internal/alerting"
)

// NotifyTest sends one synthetic event through every enabled channel.
func (a *App) NotifyTest(ctx context.Context, account string, priority alerting.Priority) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	dispatcher, closers := a.newDispatcher()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if dispatcher == nil {
		return errors.New("no notification channel configured")
	}

	dispatcher.Publish(alerting.Event{
		Account:  account,
		Type:     alerting.TypeSystem,
		Priority: priority,
		Title:    "Test Notification",
		Message:  fmt.Sprintf("Vault guard notification channels are working (%s priority).", priority),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(ctx)
	}()
	dispatcher.Close()
	<-done
	return nil
}
