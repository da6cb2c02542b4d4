// Package speech runs the speech-to-text collaborator: a trigger-file
// monitor feeding a fixed worker pool, with results written back as
// response documents. Transcription itself is an opaque engine behind the
// Transcriber interface.
package speech

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/HexSleeves/Review-Gate/internal/config"
	"github.com/HexSleeves/Review-Gate/internal/docstore"
	"github.com/HexSleeves/Review-Gate/internal/rendezvous"
	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Availability is the tagged result of probing the transcription engine.
// Probed once at startup, never re-derived ad hoc.
type Availability struct {
	Transcriber Transcriber
	Reason      string
}

// Available wraps a working engine.
func Available(t Transcriber) Availability {
	return Availability{Transcriber: t}
}

// Unavailable records why no engine could be loaded.
func Unavailable(reason string) Availability {
	return Availability{Reason: reason}
}

// OK reports whether transcription can run.
func (a Availability) OK() bool {
	return a.Transcriber != nil
}

// Monitor polls for speech trigger documents and hands the transcription
// work to a worker pool so blocking CPU work never stalls the poller.
type Monitor struct {
	docs     *docstore.Store
	avail    Availability
	pollEach time.Duration
	workers  int
	// settle before deleting consumed audio, matching the extension's
	// expectations around pending writes.
	audioSettle time.Duration
}

// NewMonitor creates a Monitor over the shared directory.
func NewMonitor(docs *docstore.Store, avail Availability) *Monitor {
	return &Monitor{
		docs:        docs,
		avail:       avail,
		pollEach:    config.DefaultSpeechPollEvery,
		workers:     config.DefaultSpeechWorkers,
		audioSettle: 100 * time.Millisecond,
	}
}

// Run polls for trigger files until the context ends. Valid requests go to
// the workers over a channel; malformed triggers are deleted and counted.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.avail.OK() {
		log.Warn().Str("reason", m.avail.Reason).Msg("speech-to-text unavailable, monitor answers with errors")
	}

	requests := make(chan wire.SpeechRequestData)
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < m.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case req, ok := <-requests:
					if !ok {
						return nil
					}
					m.handle(ctx, req)
				}
			}
		})
	}

	g.Go(func() error {
		defer close(requests)
		ticker := time.NewTicker(m.pollEach)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				m.scan(ctx, requests)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// scan consumes pending trigger files and queues valid requests.
func (m *Monitor) scan(ctx context.Context, requests chan<- wire.SpeechRequestData) {
	names, err := m.docs.Glob(rendezvous.SpeechTriggerGlob)
	if err != nil {
		log.Error().Err(err).Msg("speech trigger scan failed")
		return
	}

	for _, name := range names {
		var trigger wire.SpeechTrigger
		err := m.docs.ReadJSON(name, &trigger)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		// The trigger file is single-use either way.
		_ = m.docs.Delete(name)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("malformed speech trigger deleted")
			continue
		}
		if trigger.Data.Tool != "speech_to_text" {
			log.Debug().Str("file", name).Str("tool", trigger.Data.Tool).Msg("ignoring non-speech trigger")
			continue
		}
		if trigger.Data.TriggerID == "" || trigger.Data.AudioFile == "" {
			log.Error().Str("file", name).Msg("speech trigger missing audio_file or trigger_id")
			continue
		}

		select {
		case <-ctx.Done():
			return
		case requests <- trigger.Data:
		}
	}
}

// handle transcribes one request and writes the response document. Every
// outcome produces a response; the extension never waits on silence.
func (m *Monitor) handle(ctx context.Context, req wire.SpeechRequestData) {
	if !m.avail.OK() {
		m.respond(req.TriggerID, "", "Speech-to-text unavailable: "+m.avail.Reason)
		return
	}

	if _, err := os.Stat(req.AudioFile); err != nil {
		m.respond(req.TriggerID, "", "Audio file not found")
		return
	}

	log.Info().Str("trigger_id", req.TriggerID).Str("audio", req.AudioFile).Msg("transcribing audio")

	text, err := m.avail.Transcriber.Transcribe(ctx, req.AudioFile)
	if err != nil {
		log.Error().Err(err).Str("trigger_id", req.TriggerID).Msg("transcription failed")
		m.respond(req.TriggerID, "", err.Error())
		return
	}

	m.respond(req.TriggerID, text, "")

	// The audio file is this side's to clean up once answered.
	time.Sleep(m.audioSettle)
	if err := os.Remove(req.AudioFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("audio", req.AudioFile).Msg("audio cleanup failed")
	}
}

// respond writes the speech response document for a trigger.
func (m *Monitor) respond(triggerID, transcription, errText string) {
	resp := wire.SpeechResponse{
		Timestamp:     wire.Now(),
		TriggerID:     triggerID,
		Transcription: transcription,
		Success:       errText == "",
		Error:         errText,
		Source:        "review_gate_whisper",
	}
	name := rendezvous.SpeechResponseFile(triggerID)
	if err := m.docs.Write(name, resp); err != nil {
		log.Error().Err(err).Str("trigger_id", triggerID).Msg("speech response write failed")
		return
	}
	log.Debug().Str("trigger_id", triggerID).Bool("success", resp.Success).Msg("speech response written")
}
