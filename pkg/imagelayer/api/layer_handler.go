package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/imagelayer/pkg/imagelayer"
	"github.com/tendant/imagelayer/pkg/imagelayer/scene"
)

// LayerResponse is the response body for a layer
type LayerResponse struct {
	ID              string                  `json:"id"`
	Width           int                     `json:"width"`
	Height          int                     `json:"height"`
	Duration        imagelayer.Time         `json:"duration"`
	EditableIndex   int                     `json:"editable_index"`
	ContentDuration imagelayer.Time         `json:"content_duration"`
	ContentID       string                  `json:"content_id,omitempty"`
	VideoRanges     []imagelayer.VideoRange `json:"video_ranges"`
}

// SetImageRequest is the request body for assigning a content to a layer
type SetImageRequest struct {
	ContentID string `json:"content_id"`
	// Mode is "set" (this layer only, the default) or "replace" (every
	// layer sharing the editable index).
	Mode string `json:"mode,omitempty"`
}

// TimeResponse is the response body for time conversions, in microseconds
type TimeResponse struct {
	LayerTime   imagelayer.Time `json:"layer_time"`
	ContentTime imagelayer.Time `json:"content_time"`
}

// ContentResponse is the response body for a replacement content
type ContentResponse struct {
	ID             string                  `json:"id"`
	NativeDuration imagelayer.Time         `json:"native_duration"`
	VideoRanges    []imagelayer.VideoRange `json:"video_ranges"`
	MimeType       string                  `json:"mime_type"`
	Extension      string                  `json:"extension,omitempty"`
	Size           int                     `json:"size"`
}

// CreateContentRequest is the request body for registering a replacement
// content. Data is the base64 encoded payload.
type CreateContentRequest struct {
	NativeDuration imagelayer.Time         `json:"native_duration"`
	VideoRanges    []imagelayer.VideoRange `json:"video_ranges"`
	Data           []byte                  `json:"data,omitempty"`
}

// EditableResponse is the response body for one editable index
type EditableResponse struct {
	Index    int      `json:"index"`
	LayerIDs []string `json:"layer_ids"`
}

// DefaultMaxBodyBytes caps request bodies when WithMaxBodyBytes is not given
const DefaultMaxBodyBytes int64 = 32 << 20

// LayerHandler serves the layers of one live scene
type LayerHandler struct {
	scene        *scene.Scene
	library      *ContentLibrary
	blobs        imagelayer.BlobStore
	logger       *slog.Logger
	maxBodyBytes int64
}

// HandlerOption configures a LayerHandler
type HandlerOption func(*LayerHandler)

// WithBlobStore persists registered content payloads to blobs
func WithBlobStore(blobs imagelayer.BlobStore) HandlerOption {
	return func(h *LayerHandler) {
		h.blobs = blobs
	}
}

// WithLogger sets the handler logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *LayerHandler) {
		h.logger = logger
	}
}

// WithMaxBodyBytes limits the size of JSON request bodies
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *LayerHandler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewLayerHandler creates a new layer handler
func NewLayerHandler(s *scene.Scene, library *ContentLibrary, opts ...HandlerOption) *LayerHandler {
	h := &LayerHandler{scene: s, library: library, maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(h)
	}
	if h.library == nil {
		h.library = NewContentLibrary()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Routes returns the routes for layers and contents
func (h *LayerHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/layers", h.ListLayers)
	r.Route("/layers/{id}", func(r chi.Router) {
		r.Get("/", h.GetLayer)
		r.Delete("/", h.DestroyLayer)
		r.Put("/image", h.SetImage)
		r.Delete("/image", h.ResetImage)
		r.Get("/image-bytes", h.GetImageBytes)
		r.Get("/ranges", h.GetVideoRanges)
		r.Get("/content-time", h.LayerTimeToContent)
		r.Get("/layer-time", h.ContentTimeToLayer)
	})

	r.Get("/editable", h.ListEditable)
	r.Route("/editable/{index}", func(r chi.Router) {
		r.Get("/", h.GetEditable)
		r.Put("/image", h.ReplaceEditableImage)
		r.Delete("/image", h.ResetEditableImage)
	})

	r.Post("/contents", h.CreateContent)
	r.Get("/contents/{id}", h.GetContent)

	return r
}

// ListLayers returns every live layer from one consistent snapshot
func (h *LayerHandler) ListLayers(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.scene.Snapshots()
	if err != nil {
		h.writeError(w, "Failed to snapshot scene", err)
		return
	}

	resp := make([]LayerResponse, 0, len(snaps))
	for _, snap := range snaps {
		resp = append(resp, layerResponse(snap))
	}
	render.JSON(w, r, resp)
}

// GetLayer retrieves a layer by ID
func (h *LayerHandler) GetLayer(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}
	snap, err := layer.Snapshot()
	if err != nil {
		h.writeError(w, "Failed to get layer", err)
		return
	}
	render.JSON(w, r, layerResponse(snap))
}

// DestroyLayer releases the layer. Later requests for it answer 410.
func (h *LayerHandler) DestroyLayer(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}
	if err := h.scene.Destroy(layer.ID()); err != nil {
		h.writeError(w, "Failed to destroy layer", err)
		return
	}
	h.logger.Info("Layer destroyed", "layer_id", layer.ID())
	w.WriteHeader(http.StatusNoContent)
}

// SetImage assigns a registered content to the layer
func (h *LayerHandler) SetImage(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}

	var req SetImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	content, ok := h.content(w, req.ContentID)
	if !ok {
		return
	}

	if err := h.assign(layer, content, req.Mode); err != nil {
		if errors.Is(err, errInvalidMode) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(w, "Failed to assign image", err)
		return
	}
	h.GetLayer(w, r)
}

// ResetImage reverts the layer to its default content. The query parameter
// mode=replace reverts every layer sharing the editable index.
func (h *LayerHandler) ResetImage(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}
	if err := h.assign(layer, nil, r.URL.Query().Get("mode")); err != nil {
		if errors.Is(err, errInvalidMode) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(w, "Failed to reset image", err)
		return
	}
	h.GetLayer(w, r)
}

var errInvalidMode = errors.New("mode must be 'set' or 'replace'")

func (h *LayerHandler) assign(layer *imagelayer.ImageLayer, content *imagelayer.Content, mode string) error {
	switch mode {
	case "", "set":
		return layer.SetImage(content)
	case "replace":
		return layer.ReplaceImage(content)
	default:
		return errInvalidMode
	}
}

// ListEditable returns every editable index in use with the layers sharing it
func (h *LayerHandler) ListEditable(w http.ResponseWriter, r *http.Request) {
	indices := h.scene.EditableIndices()
	resp := make([]EditableResponse, 0, len(indices))
	for _, idx := range indices {
		resp = append(resp, editableResponse(idx, h.scene.LayersByEditableIndex(idx)))
	}
	render.JSON(w, r, resp)
}

// GetEditable returns the layers sharing one editable index
func (h *LayerHandler) GetEditable(w http.ResponseWriter, r *http.Request) {
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	layers := h.scene.LayersByEditableIndex(idx)
	if len(layers) == 0 {
		http.Error(w, imagelayer.ErrUnknownEditableIndex.Error(), http.StatusNotFound)
		return
	}
	render.JSON(w, r, editableResponse(idx, layers))
}

// ReplaceEditableImage assigns a registered content to every layer sharing
// the editable index
func (h *LayerHandler) ReplaceEditableImage(w http.ResponseWriter, r *http.Request) {
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req SetImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	content, ok := h.content(w, req.ContentID)
	if !ok {
		return
	}
	if err := h.scene.ReplaceImage(idx, content); err != nil {
		h.writeError(w, "Failed to replace editable image", err)
		return
	}
	h.GetEditable(w, r)
}

// ResetEditableImage reverts every layer sharing the editable index to its
// default content
func (h *LayerHandler) ResetEditableImage(w http.ResponseWriter, r *http.Request) {
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	if err := h.scene.ReplaceImage(idx, nil); err != nil {
		h.writeError(w, "Failed to reset editable image", err)
		return
	}
	h.GetEditable(w, r)
}

// GetVideoRanges returns the active content's replacement windows
func (h *LayerHandler) GetVideoRanges(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}
	ranges, err := layer.VideoRanges()
	if err != nil {
		h.writeError(w, "Failed to get video ranges", err)
		return
	}
	render.JSON(w, r, ranges)
}

// LayerTimeToContent converts ?layer_time= to the content timeline
func (h *LayerHandler) LayerTimeToContent(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}
	layerTime, ok := timeParam(w, r, "layer_time")
	if !ok {
		return
	}
	contentTime, err := layer.LayerTimeToContent(layerTime)
	if err != nil {
		h.writeError(w, "Failed to convert layer time", err)
		return
	}
	render.JSON(w, r, TimeResponse{LayerTime: layerTime, ContentTime: contentTime})
}

// ContentTimeToLayer converts ?content_time= to the layer timeline
func (h *LayerHandler) ContentTimeToLayer(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}
	contentTime, ok := timeParam(w, r, "content_time")
	if !ok {
		return
	}
	layerTime, err := layer.ContentTimeToLayer(contentTime)
	if err != nil {
		h.writeError(w, "Failed to convert content time", err)
		return
	}
	render.JSON(w, r, TimeResponse{LayerTime: layerTime, ContentTime: contentTime})
}

// GetImageBytes streams the layer's default payload
func (h *LayerHandler) GetImageBytes(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.layer(w, r)
	if !ok {
		return
	}
	data, err := layer.ImageBytes()
	if err != nil {
		h.writeError(w, "Failed to get image bytes", err)
		return
	}
	if data == nil {
		http.Error(w, "layer has no default image", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", imagelayer.DetectImageFormat(data).MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// CreateContent registers a replacement content
func (h *LayerHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req CreateContentRequest
	if !h.decode(w, r, &req) {
		return
	}

	var opts []imagelayer.ContentOption
	if len(req.Data) > 0 {
		opts = append(opts, imagelayer.WithContentBytes(req.Data))
	}
	content, err := imagelayer.NewContent(req.NativeDuration, req.VideoRanges, opts...)
	if err != nil {
		h.logger.Error("Invalid content", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.blobs != nil && len(req.Data) > 0 {
		key := "contents/" + content.ID().String() + extension(content.Format())
		if err := h.blobs.Upload(r.Context(), key, bytes.NewReader(req.Data)); err != nil {
			h.writeError(w, "Failed to store content payload", err)
			return
		}
	}

	h.library.Add(content)
	h.logger.Info("Content registered", "content_id", content.ID(), "mime_type", content.Format().MIME)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, contentResponse(content))
}

// GetContent retrieves a registered content by ID
func (h *LayerHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Error("Invalid content ID", "content_id", idStr, "error", err)
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}
	content, ok := h.library.Get(id)
	if !ok {
		http.Error(w, "content not found", http.StatusNotFound)
		return
	}
	render.JSON(w, r, contentResponse(content))
}

// layer resolves the {id} URL parameter, writing the error response when the
// layer cannot be served
func (h *LayerHandler) layer(w http.ResponseWriter, r *http.Request) (*imagelayer.ImageLayer, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Error("Invalid layer ID", "layer_id", idStr, "error", err)
		http.Error(w, "Invalid layer ID", http.StatusBadRequest)
		return nil, false
	}
	layer, ok := h.scene.Layer(id)
	if ok {
		return layer, true
	}
	if h.scene.Destroyed(id) {
		http.Error(w, imagelayer.ErrUseAfterDestroy.Error(), http.StatusGone)
		return nil, false
	}
	http.Error(w, imagelayer.ErrLayerNotFound.Error(), http.StatusNotFound)
	return nil, false
}

// decode reads a JSON body of at most maxBodyBytes into v, writing the error
// response when it cannot
func (h *LayerHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Request body too large", "limit", tooLarge.Limit, "path", r.URL.Path)
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// content resolves a registered content id, writing the error response when
// it is invalid or unknown
func (h *LayerHandler) content(w http.ResponseWriter, raw string) (*imagelayer.Content, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Error("Invalid content ID", "content_id", raw, "error", err)
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return nil, false
	}
	content, found := h.library.Get(id)
	if !found {
		http.Error(w, "content not found", http.StatusNotFound)
		return nil, false
	}
	return content, true
}

func (h *LayerHandler) writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, imagelayer.ErrUseAfterDestroy):
		status = http.StatusGone
	case errors.Is(err, imagelayer.ErrLayerNotFound), errors.Is(err, imagelayer.ErrObjectNotFound),
		errors.Is(err, imagelayer.ErrUnknownEditableIndex):
		status = http.StatusNotFound
	case errors.Is(err, imagelayer.ErrForeignScene):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	} else {
		h.logger.Warn(msg, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func timeParam(w http.ResponseWriter, r *http.Request, name string) (imagelayer.Time, bool) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name+": must be an integer number of microseconds", http.StatusBadRequest)
		return 0, false
	}
	return imagelayer.Time(v), true
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 {
		http.Error(w, "invalid editable index", http.StatusBadRequest)
		return 0, false
	}
	return idx, true
}

func editableResponse(idx int, layers []*imagelayer.ImageLayer) EditableResponse {
	resp := EditableResponse{Index: idx, LayerIDs: make([]string, 0, len(layers))}
	for _, l := range layers {
		resp.LayerIDs = append(resp.LayerIDs, l.ID().String())
	}
	return resp
}

func layerResponse(snap imagelayer.Snapshot) LayerResponse {
	resp := LayerResponse{
		ID:              snap.LayerID.String(),
		Width:           snap.Width,
		Height:          snap.Height,
		Duration:        snap.Duration,
		EditableIndex:   snap.EditableIndex,
		ContentDuration: snap.ContentDuration,
		VideoRanges:     snap.VideoRanges,
	}
	if snap.Content != nil {
		resp.ContentID = snap.Content.ID().String()
	}
	if resp.VideoRanges == nil {
		resp.VideoRanges = []imagelayer.VideoRange{}
	}
	return resp
}

func contentResponse(c *imagelayer.Content) ContentResponse {
	return ContentResponse{
		ID:             c.ID().String(),
		NativeDuration: c.NativeDuration(),
		VideoRanges:    c.VideoRanges(),
		MimeType:       c.Format().MIME,
		Extension:      c.Format().Extension,
		Size:           len(c.Bytes()),
	}
}

func extension(f imagelayer.ImageFormat) string {
	if f.Extension == "" {
		return ""
	}
	return "." + f.Extension
}
