package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ziadkadry99/crystal-viewer/internal/logging"
	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// Error kinds reported to clients.
const (
	KindRemoteFetch       = "remote_fetch"
	KindParse             = "parse"
	KindSupercellArgument = "supercell_argument"
	KindInternal          = "internal"
	KindBadMessage        = "bad_message"
)

// structureResponse is the JSON response for the structure endpoint.
// LoadingOutput is always null: a response means loading has finished.
type structureResponse struct {
	State         resolver.State       `json:"state"`
	Formula       string               `json:"formula,omitempty"`
	Summary       string               `json:"summary,omitempty"`
	Structure     *structure.Structure `json:"structure"`
	LoadingOutput *string              `json:"loading_output"`
}

// errorResponse is the JSON body for failed resolutions.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (v *Viewer) resolve(ctx context.Context, rawQuery string) (*structureResponse, error) {
	res, err := v.resolver.Resolve(ctx, rawQuery)
	if err != nil {
		return nil, err
	}
	resp := &structureResponse{State: res.State}
	if res.Structure != nil {
		resp.Structure = res.Structure
		resp.Formula = res.Structure.ReducedFormula()
		resp.Summary = res.Structure.Summary()
	}
	return resp, nil
}

func (v *Viewer) handleStructure(w http.ResponseWriter, r *http.Request) {
	resp, err := v.resolve(r.Context(), r.URL.RawQuery)
	if err != nil {
		status, body := classify(err)
		if status == http.StatusInternalServerError {
			logging.FromContext(r.Context()).Error("resolving structure", "error", err)
		}
		writeJSON(w, r, status, body)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// classify maps resolution errors to an HTTP status and client body.
func classify(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, resolver.ErrSupercellArgument):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: KindSupercellArgument}
	case errors.Is(err, resolver.ErrParse):
		return http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Kind: KindParse}
	case errors.Is(err, resolver.ErrRemoteFetch):
		return http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: KindRemoteFetch}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: KindInternal}
	}
}

// writeJSON encodes v before committing the status, so an unencodable value
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(r.Context()).Error("encoding response", "error", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: "internal error", Kind: KindInternal})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
