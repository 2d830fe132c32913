package engine

import (
	"github.com/w-h-a/caus/internal/causerr"
)

// Stage is how far a request's pipeline got. It only moves forward; a failed
// request is rerun from StageParsed.
type Stage int

const (
	StageParsed Stage = iota
	StageSkeletonBuilt
	StageOriented
	StageEstimated
	// Models rolled forward under an intervention
	StageSimulated
)

func (s Stage) String() string {
	switch s {
	case StageParsed:
		return "parsed"
	case StageSkeletonBuilt:
		return "skeleton_built"
	case StageOriented:
		return "oriented"
	case StageEstimated:
		return "estimated"
	case StageSimulated:
		return "simulated"
	default:
		return "unknown"
	}
}

// canAdvance lists the legal transitions. Estimate requests bring their own
// graph, so they go straight from parsed to estimated.
func (s Stage) canAdvance(to Stage) bool {
	switch s {
	case StageParsed:
		return to == StageSkeletonBuilt || to == StageEstimated
	case StageSkeletonBuilt:
		return to == StageOriented
	case StageOriented:
		return to == StageEstimated
	case StageEstimated:
		return to == StageSimulated
	default:
		return false
	}
}

func (r *request) advance(to Stage) error {
	if !r.stage.canAdvance(to) {
		return causerr.UpstreamComputation(r.op, "illegal stage transition %s -> %s", r.stage, to)
	}
	r.logger.Debug("stage reached", "from", r.stage.String(), "to", to.String())
	r.stage = to
	return nil
}
