package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/pipeline"
)

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeAppError(w http.ResponseWriter, status int, e model.AppError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: e})
}

// writeArtifact sends one generated document. The run summary travels in
// headers so the body stays byte-identical to the published file.
func writeArtifact(w http.ResponseWriter, body []byte, contentType string, rep pipeline.Report) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Node-Count", strconv.Itoa(rep.Nodes))
	w.Header().Set("X-Warning-Count", strconv.Itoa(len(rep.Warnings)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
