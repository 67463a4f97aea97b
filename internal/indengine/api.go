package indengine

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// handleReload handles POST /reload. The body is either a JSON array of
// specs, e.g. ["SMA:9","MACD"], or the comma separated text form.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "[") {
		var list []string
		if err := json.Unmarshal(body, &list); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		text = strings.Join(list, ",")
	}

	preserved, created, err := svc.Reload(text)
	if err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"preserved": preserved,
		"created":   created,
	})
}

type indicatorState struct {
	Name  string `json:"name"`
	Phase string `json:"phase"`
	Ready bool   `json:"ready"`
}

// handleSeries handles GET /series: every tracked series with the phase of
// each of its indicators.
func (svc *Service) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	out := make(map[string][]indicatorState)
	svc.mu.Lock()
	if svc.engine != nil {
		for _, series := range svc.engine.Series() {
			inds := svc.engine.Indicators(series)
			states := make([]indicatorState, len(inds))
			for i, ind := range inds {
				states[i] = indicatorState{Name: ind.Name(), Phase: ind.Phase().String(), Ready: ind.Ready()}
			}
			out[series] = states
		}
	}
	svc.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleReset handles POST /reset?series=X, returning every indicator of
// the series to its fresh state.
func (svc *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	series := r.URL.Query().Get("series")
	if series == "" {
		http.Error(w, "series required", http.StatusBadRequest)
		return
	}

	svc.mu.Lock()
	known := svc.engine != nil && svc.engine.Reset(series)
	svc.mu.Unlock()

	if !known {
		http.Error(w, "unknown series "+series, http.StatusNotFound)
		return
	}
	svc.log.Info("series reset", "series", series)
	w.WriteHeader(http.StatusNoContent)
}
