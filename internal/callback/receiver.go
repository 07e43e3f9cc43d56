// Package callback applies worker completion notices to the record store and
// the job status store.
package callback

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/jobstore"
	"github.com/sells-group/onboard/internal/metrics"
	"github.com/sells-group/onboard/internal/model"
)

// Notice statuses reported by the worker.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultErrorMessage is used when the worker reports an error without one.
const DefaultErrorMessage = "Unknown error from worker"

// ErrMissingJobID is returned for a notice without a correlation id.
var ErrMissingJobID = eris.New("callback: missing jobId")

// Records is the slice of the record store the receiver needs.
type Records interface {
	GetByJobID(ctx context.Context, jobID string) (*model.OnboardingRecord, error)
	UpdateByJobID(ctx context.Context, jobID string, patch model.RecordPatch) error
}

// Ack is the acknowledgement returned to the worker.
type Ack struct {
	Acknowledged bool   `json:"acknowledged"`
	JobID        string `json:"jobId,omitempty"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message"`
}

// Receiver correlates notices with records by job id.
type Receiver struct {
	records Records
	jobs    *jobstore.Store
	nowFunc func() time.Time
}

// NewReceiver creates a receiver.
func NewReceiver(records Records, jobs *jobstore.Store) *Receiver {
	return &Receiver{records: records, jobs: jobs, nowFunc: time.Now}
}

// Receive applies n. Notices for unknown jobs are acknowledged and ignored.
// An error is returned only when the notice is invalid or could not be
// persisted; the worker is expected to redeliver in the latter case.
// Duplicate notices are applied again, so the last one wins.
func (r *Receiver) Receive(ctx context.Context, n model.CallbackNotice) (Ack, error) {
	if n.JobID == "" {
		metrics.CallbackReceived("rejected")
		return Ack{}, ErrMissingJobID
	}
	log := zap.L().With(zap.String("job_id", n.JobID), zap.String("status", n.Status))

	rec, err := r.records.GetByJobID(ctx, n.JobID)
	if err != nil {
		return Ack{}, eris.Wrapf(err, "callback: look up job %s", n.JobID)
	}
	if rec == nil {
		log.Info("callback: notice for unknown job")
		metrics.CallbackReceived("unknown_job")
		return Ack{Acknowledged: true, JobID: n.JobID, Message: "Job not found in database"}, nil
	}

	switch {
	case n.Status == StatusSuccess && n.Data != nil:
		if err := r.applySuccess(ctx, n); err != nil {
			return Ack{}, err
		}
		log.Info("callback: enrichment completed", zap.String("user_id", rec.CreatedBy))
		metrics.CallbackReceived("success")

	case n.Status == StatusError:
		msg := n.Error
		if msg == "" {
			msg = DefaultErrorMessage
		}
		// The job store is updated even when persistence fails so that the
		// poller sees the error without waiting for a redelivery.
		r.jobs.Update(n.JobID, model.JobStatusError, nil, msg)
		if err := r.applyError(ctx, n.JobID, msg); err != nil {
			return Ack{}, err
		}
		log.Warn("callback: enrichment failed", zap.String("error", msg))
		metrics.CallbackReceived("error")

	case n.Status == StatusSuccess:
		log.Warn("callback: success notice without data")
		r.jobs.Update(n.JobID, model.JobStatusError, nil, "Worker reported success without data")
		metrics.CallbackReceived("malformed")

	default:
		log.Warn("callback: unknown notice status")
		r.jobs.Update(n.JobID, model.JobStatusError, nil, fmt.Sprintf("Unknown status: %s", n.Status))
		metrics.CallbackReceived("malformed")
	}

	return Ack{
		Acknowledged: true,
		JobID:        n.JobID,
		Status:       "processed",
		Message:      "Callback received successfully",
	}, nil
}

func (r *Receiver) applySuccess(ctx context.Context, n model.CallbackNotice) error {
	status := model.ResearchStatusCompleted
	step := model.StepCompanyOverview
	loading := model.StepLoading
	at := r.nowFunc().UTC()
	// A retry may succeed after an earlier failure was recorded.
	cleared := ""
	err := r.records.UpdateByJobID(ctx, n.JobID, model.RecordPatch{
		ResearchStatus:  &status,
		ResearchError:   &cleared,
		AIGeneratedData: n.Data,
		AIGeneratedAt:   &at,
		CurrentStep:     &step,
		CompletedStep:   &loading,
	})
	if err != nil {
		return eris.Wrapf(err, "callback: store results for job %s", n.JobID)
	}
	// Job store last: a poller that sees success can rely on the record.
	r.jobs.Update(n.JobID, model.JobStatusSuccess, n.Data, "")
	return nil
}

func (r *Receiver) applyError(ctx context.Context, jobID, msg string) error {
	status := model.ResearchStatusFailed
	step := model.StepInitial
	err := r.records.UpdateByJobID(ctx, jobID, model.RecordPatch{
		ResearchStatus: &status,
		ResearchError:  &msg,
		ClearAIData:    true,
		CurrentStep:    &step,
	})
	if err != nil {
		return eris.Wrapf(err, "callback: store failure for job %s", jobID)
	}
	return nil
}
