package service

import "errors"

var (
	ErrApplicationNotFound    = errors.New("application not found")
	ErrWebhookRejected        = errors.New("webhook rejected")
	ErrQueueEntryNotFound     = errors.New("queue entry not found")
	ErrReconcileAlreadyActive = errors.New("a reconciliation run is already active")
)
