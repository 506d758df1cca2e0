package crypto

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/snowmerak/bundle.go/lib/logging"
)

// TextParam is the form field holding the text to hash.
const TextParam = "text"

// MissingTextMessage is the body sent when the text field is empty.
const MissingTextMessage = "request parameter [text] can't be null!!"

// Result is the JSON body of a successful hash request.
type Result struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

// Handler answers POST requests with a fresh salt and the hash of the "text" field.
type Handler struct {
	hasher *Hasher
	logger *slog.Logger
}

// NewHandler creates the endpoint. A nil logger discards output.
func NewHandler(hasher *Hasher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{hasher: hasher, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	text := r.FormValue(TextParam)
	if text == "" {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(MissingTextMessage))
		return
	}

	body, err := h.result(text)
	if err != nil {
		h.logger.Error("Failed to create hash response.", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		h.logger.Error("Failed to write hash response.", "error", err)
	}
}

func (h *Handler) result(text string) ([]byte, error) {
	salt, err := h.hasher.SaltBase64()
	if err != nil {
		return nil, err
	}
	hash, err := h.hasher.HashBase64(text, salt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Result{Salt: salt, Hash: hash})
}
