// Package rendezvous implements the filesystem exchange with the editor
// extension: trigger publication, acknowledgment wait, response wait and
// cleanup. The shared directory is the only transport; everything here is
// bounded polling with explicit timeouts.
package rendezvous

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	json "github.com/goccy/go-json"

	"github.com/HexSleeves/Review-Gate/internal/docstore"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// ErrPublishFailed reports that a trigger could not be written and verified.
var ErrPublishFailed = errors.New("trigger publish failed")

const (
	// Settle delays around publication give the extension scheduling
	// slack. Tuning constants, not correctness requirements.
	settleBefore = 100 * time.Millisecond
	settleAfter  = 200 * time.Millisecond

	defaultPollInterval = 100 * time.Millisecond
	collectPollInterval = 500 * time.Millisecond

	audioMaxAge = 5 * time.Minute
)

// Options configure a Rendezvous.
type Options struct {
	// PollInterval between wait-loop checks. Defaults to 100ms.
	PollInterval time.Duration
	// Nudge, when non-nil, lets a directory watcher wake waiting polls
	// early. The poll interval and timeout bounds still hold.
	Nudge <-chan struct{}
}

// Rendezvous runs trigger/ack/response exchanges over a document store.
type Rendezvous struct {
	docs  *docstore.Store
	poll  time.Duration
	nudge <-chan struct{}
}

// New creates a Rendezvous over a document store.
func New(docs *docstore.Store, opts Options) *Rendezvous {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Rendezvous{docs: docs, poll: poll, nudge: opts.Nudge}
}

// Publish writes the trigger document to the canonical name plus the
// numbered backups. Publication succeeds once the canonical file verifies
// non-empty, or is already gone, which means the extension consumed it.
func (r *Rendezvous) Publish(ctx context.Context, data map[string]any) error {
	r.sleep(ctx, settleBefore)

	trigger := wire.Trigger{
		Timestamp:           wire.Now(),
		System:              wire.SystemTag,
		Editor:              "cursor",
		Data:                data,
		PID:                 os.Getpid(),
		ActiveWindow:        true,
		MCPIntegration:      true,
		ImmediateActivation: true,
	}
	if err := r.docs.Write(TriggerFile, trigger); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}

	size, err := r.docs.Size(TriggerFile)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		// Consumed between write and stat. A success, not a failure.
		log.Debug().Msg("trigger consumed immediately")
	case err != nil:
		return errors.Join(ErrPublishFailed, err)
	case size == 0:
		return ErrPublishFailed
	}

	// Backups defend against a single consumed or missed file. Failure
	// here never fails the publish.
	for i := 0; i < backupTriggers; i++ {
		backup := trigger
		backup.Timestamp = wire.Now()
		id := i
		backup.BackupID = &id
		if err := r.docs.Write(BackupTriggerFile(i), backup); err != nil {
			log.Warn().Err(err).Int("backup", i).Msg("backup trigger write failed")
		}
	}

	r.sleep(ctx, settleAfter)
	return nil
}

// AwaitAck polls the acknowledgment document for a trigger. Each file is
// single-use: deleted on read regardless of content. A false or malformed
// ack is consumed and the wait continues, so a later true ack still
// counts. Returns true only when acknowledged was true before the
// timeout. A timeout here is soft; callers proceed to the response wait
// anyway.
func (r *Rendezvous) AwaitAck(ctx context.Context, triggerID string, timeout time.Duration) bool {
	name := AckFile(triggerID)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		var ack wire.Ack
		err := r.docs.ReadJSON(name, &ack)
		switch {
		case err == nil:
			_ = r.docs.Delete(name)
			if ack.Acknowledged {
				log.Debug().Str("trigger_id", triggerID).Msg("extension acknowledged")
				return true
			}
		case errors.Is(err, docstore.ErrMalformed):
			_ = r.docs.Delete(name)
		case !errors.Is(err, docstore.ErrNotFound):
			log.Error().Err(err).Str("file", name).Msg("ack read failed")
		}
		if !r.sleep(ctx, r.poll) {
			return false
		}
	}

	log.Warn().Str("trigger_id", triggerID).Dur("timeout", timeout).Msg("ack wait timed out")
	return false
}

// AwaitResponse polls the candidate response documents until one matching
// the trigger produces text, or the timeout elapses. Returns ok=false on
// timeout; a timeout is a terminal outcome, not an error.
func (r *Rendezvous) AwaitResponse(ctx context.Context, triggerID string, timeout time.Duration) (string, []wire.Attachment, bool) {
	candidates := responseCandidates(triggerID)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		for _, name := range candidates {
			text, attachments, found := r.tryResponse(name, triggerID)
			if found {
				return text, attachments, true
			}
		}
		if !r.sleep(ctx, r.poll) {
			return "", nil, false
		}
	}

	log.Warn().Str("trigger_id", triggerID).Dur("timeout", timeout).Msg("response wait timed out")
	return "", nil, false
}

// tryResponse examines one candidate document. A trigger-id mismatch
// leaves the file on disk for its owner; everything else consumes it.
func (r *Rendezvous) tryResponse(name, triggerID string) (string, []wire.Attachment, bool) {
	raw, err := r.docs.Read(name)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("response read failed")
		return "", nil, false
	}

	content := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(content, "{") {
		// Plain text files are taken whole.
		_ = r.docs.Delete(name)
		if content == "" {
			return "", nil, false
		}
		log.Info().Str("file", name).Msg("plain-text response received")
		return content, nil, true
	}

	var resp wire.Response
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		log.Error().Err(err).Str("file", name).Msg("malformed response deleted")
		_ = r.docs.Delete(name)
		return "", nil, false
	}

	if triggerID != "" && resp.TriggerID != "" && resp.TriggerID != triggerID {
		// Another rendezvous owns this one. Leave it untouched.
		log.Debug().Str("file", name).
			Str("expected", triggerID).Str("got", resp.TriggerID).
			Msg("trigger id mismatch, leaving file")
		return "", nil, false
	}

	_ = r.docs.Delete(name)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", nil, false
	}

	if desc := describeImages(resp.Attachments); desc != "" {
		text += "\n\nAttached: " + desc
	}

	log.Info().Str("trigger_id", triggerID).Str("file", name).
		Int("attachments", len(resp.Attachments)).
		Msg("response received")
	return text, resp.Attachments, true
}

// describeImages builds the human-readable descriptor appended for
// image-typed attachments.
func describeImages(attachments []wire.Attachment) string {
	var parts []string
	for _, att := range attachments {
		if strings.HasPrefix(att.MimeType, "image/") {
			name := att.FileName
			if name == "" {
				name = "unknown"
			}
			parts = append(parts, "Image: "+name)
		}
	}
	return strings.Join(parts, ", ")
}

// CollectAny polls every response location, trigger-specific or generic,
// and returns the first non-empty text found along with the document that
// supplied it. Used by the tool that gathers input without a pending
// trigger.
func (r *Rendezvous) CollectAny(ctx context.Context, timeout time.Duration) (string, string, bool) {
	patterns := []string{ResponseGlob, GenericResponseFile, MCPResponseGlob, GenericMCPResponseFile}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		for _, pattern := range patterns {
			names, err := r.docs.Glob(pattern)
			if err != nil {
				log.Error().Err(err).Str("pattern", pattern).Msg("response scan failed")
				continue
			}
			for _, name := range names {
				if text, _, found := r.tryResponse(name, ""); found {
					return text, name, true
				}
			}
		}
		if !r.sleep(ctx, collectPollInterval) {
			return "", "", false
		}
	}
	return "", "", false
}

// CleanupTempFiles removes the trigger documents this instance may have
// left behind, plus audio recordings older than five minutes. Idempotent;
// the reaper calls it as the backstop for interrupted runs.
func (r *Rendezvous) CleanupTempFiles() {
	names := []string{TriggerFile}
	for i := 0; i < backupTriggers; i++ {
		names = append(names, BackupTriggerFile(i))
	}
	for _, name := range names {
		if err := r.docs.Delete(name); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("trigger cleanup failed")
		}
	}

	audio, err := r.docs.Glob(AudioGlob)
	if err != nil {
		return
	}
	for _, name := range audio {
		mt, err := r.docs.ModTime(name)
		if err != nil {
			continue
		}
		if time.Since(mt) > audioMaxAge {
			if err := r.docs.Delete(name); err == nil {
				log.Debug().Str("file", name).Msg("old audio file removed")
			}
		}
	}
}

// sleep waits for the interval, a nudge from the directory watcher, or
// context cancellation. Returns false when the context ended.
func (r *Rendezvous) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-r.nudge:
		return true
	}
}
