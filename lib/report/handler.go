package report

import (
	"log/slog"
	"net/http"

	"github.com/snowmerak/bundle.go/lib/logging"
)

// Formats understood by the handler's "format" query parameter.
const (
	FormatJSON      = "json"
	FormatProtoJSON = "protojson"
	FormatProto     = "proto"
)

// Handler serves the inventory of a framework.
type Handler struct {
	src      Source
	logger   *slog.Logger
	encoders map[string]Encoder[Inventory]
}

// NewHandler creates an inventory endpoint. A nil logger discards output.
func NewHandler(src Source, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		src:    src,
		logger: logger,
		encoders: map[string]Encoder[Inventory]{
			FormatJSON:      NewJSONEncoder[Inventory](),
			FormatProtoJSON: NewProtoJSONEncoder(toMessage),
			FormatProto:     NewProtoEncoder(toMessage),
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatJSON
	}
	enc, ok := h.encoders[format]
	if !ok {
		http.Error(w, "unknown format "+format, http.StatusBadRequest)
		return
	}

	body, err := enc.Encode(Collect(h.src))
	if err != nil {
		h.logger.Error("Failed to encode bundle inventory.", "format", format, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", enc.ContentType)
	_, _ = w.Write(body)
}
