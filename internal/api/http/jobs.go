package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shardsplit/shardsplit/internal/catalog"
)

// SliceJSON is the JSON form of a slice.
type SliceJSON struct {
	ID  int32 `json:"id"`
	Max int32 `json:"max"`
}

// SplitJSON describes one stored split. Encoded is the wire form, base64
// encoded by encoding/json.
type SplitJSON struct {
	Key         string     `json:"key"`
	Index       string     `json:"index"`
	Shard       int32      `json:"shard"`
	Slice       *SliceJSON `json:"slice"`
	Worker      int        `json:"worker"`
	ObjectPath  string     `json:"object_path,omitempty"`
	Display     string     `json:"display"`
	HasSettings bool       `json:"has_settings"`
	HasMapping  bool       `json:"has_mapping"`
	Encoded     []byte     `json:"encoded"`
}

// SplitsResponse is the body of GET /v1/jobs/{id}/splits.
type SplitsResponse struct {
	JobID     string      `json:"job_id"`
	Worker    *int        `json:"worker,omitempty"`
	Splits    []SplitJSON `json:"splits"`
	RequestID string      `json:"request_id"`
}

// JobsResponse is the body of GET /v1/jobs.
type JobsResponse struct {
	Jobs      []*catalog.Job `json:"jobs"`
	RequestID string         `json:"request_id"`
}

// JobsHandler serves the job and split listing endpoints.
type JobsHandler struct {
	catalog catalog.Catalog
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(c catalog.Catalog) *JobsHandler {
	return &JobsHandler{catalog: c}
}

// Register installs the handler's routes on mux behind middleware.
func (h *JobsHandler) Register(mux *http.ServeMux, middleware func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/jobs", middleware(http.HandlerFunc(h.listJobs)))
	mux.Handle("GET /v1/jobs/{id}", middleware(http.HandlerFunc(h.getJob)))
	mux.Handle("GET /v1/jobs/{id}/splits", middleware(http.HandlerFunc(h.listSplits)))
}

func (h *JobsHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	jobs, err := h.catalog.ListJobs(r.Context())
	if err != nil {
		writeSplitError(w, err, requestID)
		return
	}
	if jobs == nil {
		jobs = []*catalog.Job{}
	}
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, RequestID: requestID})
}

func (h *JobsHandler) getJob(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	job, err := h.catalog.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSplitError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobsHandler) listSplits(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	jobID := r.PathValue("id")

	var (
		records []*catalog.SplitRecord
		worker  *int
		err     error
	)
	if raw := r.URL.Query().Get("worker"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid worker %q", raw), "", requestID)
			return
		}
		worker = &n
		records, err = h.catalog.SplitsForWorker(r.Context(), jobID, n)
	} else {
		records, err = h.catalog.ListSplits(r.Context(), jobID)
	}
	if err != nil {
		writeSplitError(w, err, requestID)
		return
	}

	resp := SplitsResponse{
		JobID:     jobID,
		Worker:    worker,
		Splits:    make([]SplitJSON, 0, len(records)),
		RequestID: requestID,
	}
	for _, rec := range records {
		sj, err := toSplitJSON(rec)
		if err != nil {
			writeSplitError(w, err, requestID)
			return
		}
		resp.Splits = append(resp.Splits, sj)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toSplitJSON(rec *catalog.SplitRecord) (SplitJSON, error) {
	d := rec.Definition
	encoded, err := d.Marshal()
	if err != nil {
		return SplitJSON{}, err
	}
	_, hasSettings := d.SerializedSettings()
	_, hasMapping := d.SerializedMapping()

	sj := SplitJSON{
		Key:         rec.Key,
		Index:       d.Index(),
		Shard:       d.ShardID(),
		Worker:      rec.Worker,
		ObjectPath:  rec.ObjectPath,
		Display:     d.String(),
		HasSettings: hasSettings,
		HasMapping:  hasMapping,
		Encoded:     encoded,
	}
	if s, ok := d.Slice(); ok {
		sj.Slice = &SliceJSON{ID: s.ID, Max: s.Max}
	}
	return sj, nil
}

// HealthHandler reports liveness for the given service name.
func HealthHandler(service, mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": service,
			"mode":    mode,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}
