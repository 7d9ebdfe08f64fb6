package tracker

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/hashicorp/go-set/v3"
)

// propagateLabels pushes agent-reported labels into the label manager.
// In distributed mode the request labels are authoritative; in
// delegated-centralized mode the tracker only asks the delegated updater
// to refresh this node. Returns whether the labels were accepted and any
// error to surface in the response diagnostics. A nil labels pointer
// means the agent did not report labels this round.
func (s *Service) propagateLabels(id types.NodeID, labels *[]string) (bool, error) {
	switch s.labelMode {
	case config.LabelModeDistributed:
		if labels == nil {
			return false, nil
		}
		if err := s.labels.ReplaceLabelsOnNode(map[types.NodeID][]string{id: *labels}); err != nil {
			return false, fmt.Errorf("node labels {%v} not accepted: %w", *labels, err)
		}
		return true, nil

	case config.LabelModeDelegatedCentralized:
		if s.delegated == nil {
			return false, nil
		}
		if err := s.delegated.UpdateNodeLabels(id); err != nil {
			// Delegated refresh failures never fail the heartbeat and are
			// not the agent's to fix; log only.
			s.logger.Warn().Str("node", id.String()).Err(err).Msg("Delegated node label update failed")
		}
		return false, nil
	}
	return false, nil
}

// propagateAttributes pushes agent-authored attributes into the attribute
// manager. The batch is rejected whole when any attribute carries a
// prefix other than the reserved distributed prefix; an unchanged set is
// a no-op that never reaches the manager.
func (s *Service) propagateAttributes(host string, attrs []types.NodeAttribute) (bool, error) {
	if len(attrs) == 0 {
		return false, nil
	}

	for _, a := range attrs {
		if a.Prefix != types.AttributePrefixDistributed {
			return false, fmt.Errorf(
				"node attribute %s not accepted: prefix %q is not the distributed prefix %q",
				a.Key(), a.Prefix, types.AttributePrefixDistributed)
		}
	}

	stored := s.attrs.AttributesForNode(host)
	if attributeSetsEqual(attrs, stored) {
		return true, nil
	}

	if err := s.attrs.ReplaceNodeAttributes(types.AttributePrefixDistributed, map[string][]types.NodeAttribute{host: attrs}); err != nil {
		return false, fmt.Errorf("node attributes not accepted: %w", err)
	}
	return true, nil
}

// attributeSetsEqual compares an incoming distributed batch against the
// stored attributes, considering only the distributed prefix on the
// stored side.
func attributeSetsEqual(incoming, stored []types.NodeAttribute) bool {
	canon := func(a types.NodeAttribute) string {
		return a.Key() + "=" + a.Type + ":" + a.Value
	}

	in := set.New[string](len(incoming))
	for _, a := range incoming {
		in.Insert(canon(a))
	}
	st := set.New[string](len(stored))
	for _, a := range stored {
		if a.Prefix == types.AttributePrefixDistributed {
			st.Insert(canon(a))
		}
	}

	if in.Size() != st.Size() {
		return false
	}
	for _, k := range in.Slice() {
		if !st.Contains(k) {
			return false
		}
	}
	return true
}
