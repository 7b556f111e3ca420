// pkg/lvm/plan.go

package lvm

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/topology"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// MirrorSizeTolerance is how far apart the two mirror members may be in
// size before the volume-manage phase refuses to group them. A raid1
// volume is limited to the smaller member; a large mismatch silently
// wastes the difference, so it must be requested consciously.
const MirrorSizeTolerance = 0.05

// PlanVolumes validates a group's carve order before any lvcreate runs.
// "Consume all remaining space" has no defined meaning except for the
// last logical volume carved from a group.
func PlanVolumes(volumes []*topology.LogicalVolume) error {
	for i, lv := range volumes {
		if lv.Remaining && i != len(volumes)-1 {
			return bedrock_err.NewUserError(
				"logical volume %s/%s requests remaining space but is not the last volume carved from %s",
				lv.VG.Name, lv.Name, lv.VG.Name)
		}
		if !lv.Remaining && lv.Size == "" {
			return bedrock_err.NewUserError(
				"logical volume %s/%s has neither a fixed size nor remaining-space semantics",
				lv.VG.Name, lv.Name)
		}
	}
	return nil
}

// CheckMirrorCandidates verifies the mirror members are size-compatible
// before the group is created.
func CheckMirrorCandidates(rc *bedrock_io.RuntimeContext, exe execute.Executor, devices []string) error {
	log := otelzap.Ctx(rc.Ctx)
	if len(devices) != 2 {
		return bedrock_err.NewUserError("mirrored group needs exactly two members, got %d", len(devices))
	}

	sizeA, err := DeviceSizeBytes(rc, exe, devices[0])
	if err != nil {
		return err
	}
	sizeB, err := DeviceSizeBytes(rc, exe, devices[1])
	if err != nil {
		return err
	}

	small, large := sizeA, sizeB
	if small > large {
		small, large = large, small
	}
	if float64(large-small) > float64(large)*MirrorSizeTolerance {
		return bedrock_err.NewUserError(
			"mirror members differ in size beyond tolerance: %s is %d bytes, %s is %d bytes",
			devices[0], sizeA, devices[1], sizeB)
	}

	log.Debug("Mirror members size-compatible",
		zap.Int64("size_a", sizeA),
		zap.Int64("size_b", sizeB))
	return nil
}
