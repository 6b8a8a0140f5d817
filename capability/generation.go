package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/nsa-yoda/ReplyXL/imagize"
	"github.com/nsa-yoda/ReplyXL/logger"
	"github.com/nsa-yoda/ReplyXL/route"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

type generationRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Generation forwards the request text to a Generator and answers with JSON.
type Generation struct {
	generator imagize.Generator
}

func NewGeneration(g imagize.Generator) *Generation {
	return &Generation{generator: g}
}

func (g *Generation) Serve(w http.ResponseWriter, r *http.Request, _ route.Params) error {
	text, err := readText(w, r)
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, code, errorResponse{Error: err.Error()})
		return nil
	}

	res, err := g.generator.Generate(r.Context(), text)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
		return nil
	case errors.Is(err, imagize.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil
	case errors.Is(err, imagize.ErrGenerationFailed):
		logger.Error("generation failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: imagize.ErrGenerationFailed.Error()})
		return nil
	default:
		return err
	}
}

// readText takes the passage from a JSON body {"text": ...} or from the
// "text" form/query value.
func readText(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req generationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", fmt.Errorf("malformed JSON body: %w", err)
		}
		return req.Text, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("malformed form body: %w", err)
	}
	return r.FormValue("text"), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
