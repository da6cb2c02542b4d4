package rendezvous

import (
	"github.com/rs/zerolog/log"

	"github.com/HexSleeves/Review-Gate/pkg/wire"
)

// PublishProgress overwrites the single progress document in place. There
// is no trigger-id correlation: one outstanding progress stream is assumed.
func (r *Rendezvous) PublishProgress(title string, percentage float64, step, status string) error {
	doc := wire.Progress{
		Timestamp: wire.Now(),
		System:    wire.SystemTag,
		Type:      "progress_update",
		Data: wire.ProgressData{
			Title:      title,
			Percentage: percentage,
			Step:       step,
			Status:     status,
		},
	}
	if err := r.docs.Write(ProgressFile, doc); err != nil {
		log.Error().Err(err).Msg("progress update failed")
		return err
	}
	log.Debug().Float64("percentage", percentage).Str("step", step).Msg("progress update sent")
	return nil
}

// ClearProgress removes the progress document.
func (r *Rendezvous) ClearProgress() error {
	return r.docs.Delete(ProgressFile)
}
