/**
 * @description
 * Periodic re-verification sweep. The one-shot deferred verifier covers a
 * lost webhook, but not a process restart between deposit initiation and the
 * timer firing. This cron job scans the pending-deposit keys still in the
 * store and re-drives ConfirmDeposit for each; the pending record's atomic
 * claim makes the sweep safe to run alongside webhooks and timers.
 */

package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kudipay/settlement-service/internal/cache"
	"github.com/kudipay/settlement-service/internal/domain"
)

// Reverifier owns the cron schedule for the pending-deposit sweep.
type Reverifier struct {
	service *Service
	cron    *cron.Cron
	minAge  time.Duration
}

// NewReverifier creates a Reverifier. minAge keeps the sweep from racing
// deposits whose deferred timer has not fired yet.
func NewReverifier(service *Service, minAge time.Duration) *Reverifier {
	cronLogger := cron.PrintfLogger(log.Default())
	return &Reverifier{
		service: service,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger))),
		minAge:  minAge,
	}
}

// Start registers the sweep on the given cron spec and starts the scheduler.
func (r *Reverifier) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.Sweep); err != nil {
		return err
	}
	r.cron.Start()
	log.Printf("level=info component=reverifier msg=\"pending deposit sweep scheduled\" schedule=%q", schedule)
	return nil
}

// Stop gracefully stops the cron scheduler.
func (r *Reverifier) Stop() context.Context {
	return r.cron.Stop()
}

// Sweep re-drives confirmation for every pending deposit old enough to have
// missed both its webhook and its deferred timer.
func (r *Reverifier) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	keys, err := r.service.pending.ScanKeys(ctx, cache.KeyPrefixPendingDeposit+"*")
	if err != nil {
		log.Printf("level=warn component=reverifier msg=\"pending deposit scan failed\" err=%v", err)
		return
	}

	for _, key := range keys {
		reference := strings.TrimPrefix(key, cache.KeyPrefixPendingDeposit)

		var record domain.PendingDeposit
		found, err := r.service.pending.Get(ctx, key, &record)
		if err != nil || !found {
			continue
		}
		if time.Since(record.CreatedAt) < r.minAge {
			continue
		}

		result, err := r.service.ConfirmDeposit(ctx, reference, record.GatewayReference)
		switch {
		case err == domain.ErrOperationExpired:
			// Another confirmer won the claim between scan and confirm.
		case err != nil:
			log.Printf("level=warn component=reverifier reference=%s msg=\"re-verification failed\" err=%v", reference, err)
		case result.Settled:
			log.Printf("level=info component=reverifier reference=%s msg=\"deposit settled by sweep\"", reference)
		}
	}
}
