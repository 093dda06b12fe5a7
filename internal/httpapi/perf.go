package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/chatform/internal/observability"
)

// handlePerfLatency reports the rolling call stage window. ?stage= narrows
// the result to one stage.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, observability.CallStageSnapshot{Stages: []observability.CallStageStats{}})
		return
	}
	snap := s.metrics.SnapshotCallStages()
	if stage := strings.TrimSpace(r.URL.Query().Get("stage")); stage != "" {
		filtered := make([]observability.CallStageStats, 0, 1)
		for _, st := range snap.Stages {
			if st.Stage == stage {
				filtered = append(filtered, st)
			}
		}
		snap.Stages = filtered
	}
	respondJSON(w, http.StatusOK, snap)
}
