// pkg/phase/runner.go

package phase

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Status is the outcome of a Run invocation.
type Status int

const (
	// Completed means the body ran and the marker was recorded.
	Completed Status = iota
	// AlreadyCompleted means the marker was already set and no operation
	// was performed. It is the resumability contract, not an error.
	AlreadyCompleted
)

func (s Status) String() string {
	if s == AlreadyCompleted {
		return "already-completed"
	}
	return "completed"
}

// Precondition is a named check that must pass before a body may execute.
// A failing precondition is fatal and guarantees no partial mutation.
type Precondition struct {
	Description string
	Check       func(rc *bedrock_io.RuntimeContext) error
}

// Spec binds a phase to its preconditions and destructive body.
type Spec struct {
	Phase         Phase
	Preconditions []Precondition
	Body          func(rc *bedrock_io.RuntimeContext) error
}

// Runner executes phases exactly once per machine lifecycle, guarded by
// the persisted marker. Re-invocation after a crash, reboot, or operator
// re-run is safe: a set marker short-circuits before any destructive work.
type Runner struct {
	Markers MarkerStore
}

func NewRunner(markers MarkerStore) *Runner {
	return &Runner{Markers: markers}
}

// Run drives one phase through Pending -> Running -> Completed|Failed.
// On body failure the marker is left unset and the error propagates as
// fatal; there is no automatic retry. The marker is set only after the
// body's last operation observably succeeded.
func (r *Runner) Run(rc *bedrock_io.RuntimeContext, spec Spec) (Status, error) {
	log := otelzap.Ctx(rc.Ctx)

	done, err := r.Markers.IsSet(spec.Phase)
	if err != nil {
		return Completed, cerr.Wrapf(err, "read marker for phase %s", spec.Phase)
	}
	if done {
		log.Info("Phase already completed, skipping",
			zap.String("phase", spec.Phase.String()))
		return AlreadyCompleted, nil
	}

	for _, pre := range spec.Preconditions {
		if err := pre.Check(rc); err != nil {
			log.Error("Phase precondition unmet",
				zap.String("phase", spec.Phase.String()),
				zap.String("precondition", pre.Description),
				zap.Error(err))
			return Completed, &bedrock_err.PreconditionUnmet{
				Phase: spec.Phase.String(),
				What:  pre.Description,
			}
		}
	}

	log.Info("Phase starting", zap.String("phase", spec.Phase.String()))

	if err := spec.Body(rc); err != nil {
		log.Error("Phase failed, marker left unset",
			zap.String("phase", spec.Phase.String()),
			zap.Error(err))
		return Completed, cerr.Wrapf(err, "phase %s failed", spec.Phase)
	}

	if err := r.Markers.Set(spec.Phase); err != nil {
		// Body succeeded but the marker could not be recorded; a re-run
		// would repeat the body, so surface this loudly.
		return Completed, cerr.Wrapf(err, "phase %s succeeded but its marker could not be recorded", spec.Phase)
	}

	log.Info("Phase completed", zap.String("phase", spec.Phase.String()))
	return Completed, nil
}
