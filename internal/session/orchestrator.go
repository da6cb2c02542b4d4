// Package session ties a rendezvous exchange to its persistence records.
// The orchestrator resolves sessions and conversations on demand and
// appends the exchanged messages; the reaper sweeps expired state.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// Orchestrator resolves session and conversation identifiers for exchanges
// and records what was said. Store failures degrade to ephemeral ids so an
// exchange never fails just because history could not be written.
type Orchestrator struct {
	sessions *db.SessionStore
	convs    *db.ConversationStore
	expiry   time.Duration
}

// NewOrchestrator creates an Orchestrator over the entity stores.
func NewOrchestrator(sessions *db.SessionStore, convs *db.ConversationStore) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		convs:    convs,
		expiry:   config.DefaultSessionExpiry,
	}
}

// ResolveSession refreshes the heartbeat of an existing session or creates
// one. An empty uuid always creates. On store failure the exchange carries
// on with an ephemeral id that is never persisted.
func (o *Orchestrator) ResolveSession(ctx context.Context, sessionUUID string) string {
	if sessionUUID != "" {
		existing, err := o.sessions.Get(ctx, sessionUUID)
		if err != nil {
			log.Error().Err(err).Str("session", sessionUUID).Msg("session lookup failed, using ephemeral id")
			return uuid.NewString()
		}
		if existing != nil {
			if err := o.sessions.Heartbeat(ctx, sessionUUID); err != nil {
				log.Warn().Err(err).Str("session", sessionUUID).Msg("heartbeat failed")
			}
			return sessionUUID
		}
	}

	created, err := o.sessions.Create(ctx, sessionUUID, o.expiry)
	if err != nil {
		log.Error().Err(err).Msg("session create failed, using ephemeral id")
		if sessionUUID != "" {
			return sessionUUID
		}
		return uuid.NewString()
	}
	return created.UUID
}

// ResolveConversation reuses the session's active conversation or creates
// one. Degrades to an ephemeral id on store failure.
func (o *Orchestrator) ResolveConversation(ctx context.Context, sessionUUID, title, contextText string) string {
	active, err := o.convs.GetActiveBySession(ctx, sessionUUID)
	if err != nil {
		log.Error().Err(err).Str("session", sessionUUID).Msg("conversation lookup failed, using ephemeral id")
		return uuid.NewString()
	}
	if active != nil {
		return active.ID
	}

	created, err := o.convs.Create(ctx, sessionUUID, title, contextText)
	if err != nil {
		log.Error().Err(err).Str("session", sessionUUID).Msg("conversation create failed, using ephemeral id")
		return uuid.NewString()
	}
	return created.ID
}

// RecordExchange persists one completed rendezvous: the assistant's prompt,
// then the user's reply when one arrived. The conversation closes as
// completed on a reply and as timeout when the wait expired. Persistence
// failures are logged, never surfaced.
func (o *Orchestrator) RecordExchange(ctx context.Context, conversationID, prompt, reply string, attachments []wire.Attachment, answered bool) {
	if conversationID == "" {
		return
	}

	if prompt != "" {
		if _, err := o.convs.AddMessage(ctx, conversationID, db.RoleAssistant, prompt, nil); err != nil {
			log.Warn().Err(err).Str("conversation", conversationID).Msg("prompt not recorded")
		}
	}

	status := db.ConversationTimeout
	if answered {
		status = db.ConversationCompleted
		if _, err := o.convs.AddMessage(ctx, conversationID, db.RoleUser, reply, attachments); err != nil {
			log.Warn().Err(err).Str("conversation", conversationID).Msg("reply not recorded")
		}
	}

	if err := o.convs.UpdateStatus(ctx, conversationID, status); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Str("status", status).Msg("status not recorded")
	}
}
