package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Brownie44l1/fkp-api/internal/httputil"
	"github.com/Brownie44l1/fkp-api/internal/imaging"
	"github.com/Brownie44l1/fkp-api/internal/model"
	"github.com/Brownie44l1/fkp-api/internal/monitoring"
	"github.com/Brownie44l1/fkp-api/internal/render"
)

const (
	maxJSONBody   = 64 << 20
	maxUploadSize = 10 << 20
	maxHistory    = 500
)

// History is the read side of the prediction store. GetPrediction returns
// model.ErrNotFound for an unknown id.
type History interface {
	GetPrediction(ctx context.Context, id string) (model.Record, error)
	RecentPredictions(ctx context.Context, limit int) ([]model.Record, error)
}

type Handler struct {
	modelServer *model.Server
	history     History
	assetsHost  string
}

type Option func(*Handler)

// WithHistory enables the /predictions endpoints.
func WithHistory(h History) Option {
	return func(hd *Handler) { hd.history = h }
}

// WithChartAssetsHost sets where chart pages load echarts from.
func WithChartAssetsHost(host string) Option {
	return func(hd *Handler) { hd.assetsHost = host }
}

func NewHandler(modelServer *model.Server, opts ...Option) *Handler {
	h := &Handler{modelServer: modelServer}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts every endpoint on mux, passing each through wrap.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	if wrap == nil {
		wrap = func(f http.HandlerFunc) http.HandlerFunc { return f }
	}
	mux.HandleFunc("/health", wrap(h.Health))
	mux.HandleFunc("/model", wrap(h.ModelInfo))
	mux.HandleFunc("/predict", wrap(h.Predict))
	mux.HandleFunc("/predict/image", wrap(h.PredictFromImage))
	mux.HandleFunc("/predict/plot", wrap(h.PredictPlot))
	mux.HandleFunc("/predict/chart", wrap(h.PredictChart))
	mux.HandleFunc("/predictions", wrap(h.ListPredictions))
	mux.HandleFunc("/predictions/{id}", wrap(h.GetPrediction))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "healthy", "backend": h.modelServer.Backend()})
}

func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, h.modelServer.Info())
}

// Predict accepts {"image": [...]} or {"images": [[...], ...]} with S*S
// grayscale values per image.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req model.PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		httputil.BadRequest(w, "Invalid JSON")
		return
	}

	switch {
	case len(req.Images) > 0:
		results, err := h.modelServer.PredictBatch(r.Context(), req.Images)
		if err != nil {
			httputil.ModelError(w, err, "Prediction failed")
			return
		}
		httputil.WriteJSONOK(w, model.BatchResponse{Predictions: results})
	case len(req.Image) > 0:
		result, err := h.modelServer.Predict(r.Context(), req.Image)
		if err != nil {
			httputil.ModelError(w, err, "Prediction failed")
			return
		}
		httputil.WriteJSONOK(w, result)
	default:
		size := h.modelServer.ImageSize()
		httputil.BadRequest(w, fmt.Sprintf("Expected \"image\" with %d values or \"images\"", size*size))
	}
}

// PredictFromImage predicts keypoints for an uploaded JPEG or PNG.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.predictUpload(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, result)
}

// PredictPlot renders the keypoints of an uploaded image as a PNG.
func (h *Handler) PredictPlot(w http.ResponseWriter, r *http.Request) {
	result, name, ok := h.predictUpload(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.PlotPNG(&buf, result.Keypoints, result.ImageSize, name); err != nil {
		monitoring.Logf("Plot error: %v", err)
		httputil.InternalServerError(w, "Failed to render plot")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Prediction-Id", result.ID)
	_, _ = w.Write(buf.Bytes())
}

// PredictChart renders the keypoints of an uploaded image as an HTML chart.
func (h *Handler) PredictChart(w http.ResponseWriter, r *http.Request) {
	result, name, ok := h.predictUpload(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := render.ChartHTML(&buf, result.Keypoints, result.ImageSize, render.ChartOptions{
		Title:      name,
		AssetsHost: h.assetsHost,
	})
	if err != nil {
		monitoring.Logf("Chart error: %v", err)
		httputil.InternalServerError(w, "Failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Prediction-Id", result.ID)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if h.history == nil {
		httputil.NotFound(w, "prediction history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistory {
			httputil.BadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxHistory))
			return
		}
		limit = n
	}

	records, err := h.history.RecentPredictions(r.Context(), limit)
	if err != nil {
		httputil.ModelError(w, err, "Failed to load predictions")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"predictions": records})
}

func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if h.history == nil {
		httputil.NotFound(w, "prediction history is disabled")
		return
	}

	rec, err := h.history.GetPrediction(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.ModelError(w, err, "Failed to load prediction")
		return
	}
	httputil.WriteJSONOK(w, rec)
}

// predictUpload decodes the multipart "image" field and runs it. On failure
// it has already written the response and returns ok == false.
func (h *Handler) predictUpload(w http.ResponseWriter, r *http.Request) (*model.PredictionResponse, string, bool) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return nil, "", false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httputil.BadRequest(w, "Failed to parse form")
		return nil, "", false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.BadRequest(w, "No image file provided. Use 'image' as the form field name")
		return nil, "", false
	}
	defer file.Close()

	monitoring.Logf("Received file: %s, size: %d bytes", header.Filename, header.Size)

	img, format, err := imaging.Decode(file)
	if err != nil {
		httputil.BadRequest(w, "Invalid image format. Supported: JPEG, PNG")
		return nil, "", false
	}
	monitoring.Logf("Image format: %s, dimensions: %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())

	input := imaging.ToInput(img, h.modelServer.ImageSize())
	result, err := h.modelServer.Predict(r.Context(), input)
	if err != nil {
		httputil.ModelError(w, err, "Prediction failed")
		return nil, "", false
	}
	return result, header.Filename, true
}
