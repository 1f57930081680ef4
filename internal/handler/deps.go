package handler

import (
	"context"

	"relaychat/internal/app/chat"
	"relaychat/internal/app/journal"
	"relaychat/internal/configs"
)

// JournalReader lists recent participant events. *journal.Journal satisfies it.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Event, error)
}

// AppDeps groups what the admin HTTP handlers need.
type AppDeps struct {
	Supervisor *chat.Supervisor
	Config     *configs.AppConfig

	// Journal is nil when no database is configured.
	Journal JournalReader
}
