package scans

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const recordTimeout = 5 * time.Second

// Recorder writes scans in the background so the redirect never waits on storage.
type Recorder struct {
	writers []Writer
	wg      sync.WaitGroup
}

func NewRecorder(writers ...Writer) *Recorder {
	return &Recorder{writers: writers}
}

// Record copies the scan and writes it to every writer on a new goroutine.
func (r *Recorder) Record(scan Scan) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("qr_id", scan.QRCodeID).Msg("Recovered from panic in scan recorder")
			}
		}()

		// Detached from the request so a finished response does not cancel the write.
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		for _, w := range r.writers {
			if err := w.Record(ctx, &scan); err != nil {
				log.Warn().Err(err).Str("qr_id", scan.QRCodeID).Msg("Failed to record scan")
			}
		}
	}()
}

// Wait blocks until pending writes finish.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
