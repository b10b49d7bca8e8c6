package importer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mealwise/mealwise/internal/recommend"
	"github.com/mealwise/mealwise/internal/storage"
)

// JobType is the queue type claimed by this worker.
const JobType = "menu_import"

// Store abstracts the queue and catalog operations the worker needs.
// Implemented by storage.Store.
type Store interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetMenuDoc(id string) (storage.MenuDoc, error)
	SetMenuDocStatus(id, status string) error
	SaveMeal(m recommend.Meal) error
}

// Worker processes menu_import jobs from the SQLite job queue.
type Worker struct {
	store  Store
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store Store, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single menu_import job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("menu import failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type importPayload struct {
	MenuDocID string `json:"menu_doc_id"`
}

// EnqueuePayload builds the payload JSON for a menu import job.
func EnqueuePayload(menuDocID string) string {
	b, _ := json.Marshal(importPayload{MenuDocID: menuDocID})
	return string(b)
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload importPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetMenuDoc(payload.MenuDocID)
	if err != nil {
		return fmt.Errorf("loading menu doc %s: %w", payload.MenuDocID, err)
	}

	text := doc.Content
	if doc.Format == "pdf" {
		raw, err := base64.StdEncoding.DecodeString(doc.Content)
		if err != nil {
			w.markFailed(doc.ID)
			return fmt.Errorf("decoding pdf content: %w", err)
		}
		if text, err = ExtractPDFText(raw); err != nil {
			w.markFailed(doc.ID)
			return fmt.Errorf("doc %s: %w", doc.ID, err)
		}
	}

	meals, err := ParseMenu(doc.Merchant, text)
	if err != nil {
		w.markFailed(doc.ID)
		return fmt.Errorf("parsing menu %s: %w", doc.ID, err)
	}

	for _, meal := range meals {
		meal.ID = uuid.New().String()
		if err := w.store.SaveMeal(meal); err != nil {
			return fmt.Errorf("saving meal %q: %w", meal.Name, err)
		}
	}

	if err := w.store.SetMenuDocStatus(doc.ID, "imported"); err != nil {
		return fmt.Errorf("updating doc status: %w", err)
	}

	w.logger.Info("menu imported", "doc_id", doc.ID, "merchant", doc.Merchant, "meals", len(meals))
	return nil
}

func (w *Worker) markFailed(docID string) {
	if err := w.store.SetMenuDocStatus(docID, "failed"); err != nil {
		w.logger.Error("failed to mark menu doc as failed", "doc_id", docID, "error", err)
	}
}
