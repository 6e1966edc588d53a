package monitor

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/banshee-data/drill.sim/internal/drill/sim"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/banshee-data/drill.sim/internal/httputil"
)

// Source is the read side of a running controller.
type Source interface {
	Status() sim.Status
	Volume() *voxel.Volume
}

// Handlers serves the live status, trace charts and density slices.
type Handlers struct {
	src   Source
	trace *Trace
	title string
}

// NewHandlers returns handlers over src. trace may be nil, in which case
// the trace chart reports 404.
func NewHandlers(src Source, trace *Trace, title string) *Handlers {
	return &Handlers{src: src, trace: trace, title: title}
}

// Register mounts the handlers under /drill/ on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/drill/status", h.handleStatus)
	mux.HandleFunc("/drill/charts/trace", h.handleTraceChart)
	mux.HandleFunc("/drill/charts/slice", h.handleSliceChart)
	mux.HandleFunc("/drill/voxel", h.handleVoxel)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, h.src.Status())
}

func (h *Handlers) handleTraceChart(w http.ResponseWriter, r *http.Request) {
	if h.trace == nil || h.trace.Len() == 0 {
		httputil.NotFound(w, "no trace recorded")
		return
	}
	var buf bytes.Buffer
	if err := RenderTraceCharts(&buf, h.title, h.trace.Points()); err != nil {
		httputil.InternalServerError(w, "render error: "+err.Error())
		return
	}
	httputil.WriteHTML(w, &buf)
}

// handleSliceChart renders layer k (query param, default the middle layer)
// of the live volume.
func (h *Handlers) handleSliceChart(w http.ResponseWriter, r *http.Request) {
	vol := h.src.Volume()
	if vol == nil {
		httputil.Unavailable(w, sim.ErrNotInitialized.Error())
		return
	}
	k := vol.Dims().K / 2
	if v := r.URL.Query().Get("k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'k' parameter")
			return
		}
		k = parsed
	}
	s, err := VolumeSlice(vol, k)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := RenderSliceChart(&buf, vol.Name(), s); err != nil {
		httputil.InternalServerError(w, "render error: "+err.Error())
		return
	}
	httputil.WriteHTML(w, &buf)
}

type voxelResponse struct {
	I        int     `json:"i"`
	J        int     `json:"j"`
	K        int     `json:"k"`
	Density  float32 `json:"density"`
	Hardness uint8   `json:"hardness"`
	Removed  bool    `json:"removed"`
	Version  uint64  `json:"version"`
}

// handleVoxel answers ?i=&j=&k= with one cell of the live volume.
func (h *Handlers) handleVoxel(w http.ResponseWriter, r *http.Request) {
	vol := h.src.Volume()
	if vol == nil {
		httputil.Unavailable(w, sim.ErrNotInitialized.Error())
		return
	}
	var idx [3]int
	for n, name := range []string{"i", "j", "k"} {
		v, err := strconv.Atoi(r.URL.Query().Get(name))
		if err != nil {
			httputil.BadRequest(w, "missing or invalid '"+name+"' parameter")
			return
		}
		idx[n] = v
	}
	c, err := vol.At(idx[0], idx[1], idx[2])
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, voxelResponse{
		I: idx[0], J: idx[1], K: idx[2],
		Density:  c.Density,
		Hardness: c.Hardness,
		Removed:  c.Removed,
		Version:  vol.Version(),
	})
}
