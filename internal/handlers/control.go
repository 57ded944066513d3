// Package handlers implements the control surface (§4.I, §6): HTTP
// endpoints that translate external start/stop/status/health requests into
// calls against the Supervisor.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"xtracto/internal/agency"
	"xtracto/internal/scheduler"
	"xtracto/internal/store"
	"xtracto/internal/utils"
)

// Stage names, matching the source's task vocabulary (§6).
const (
	StageBulkCrawl         = "first_scraper"
	StageLoopScraper       = "loop_scraper"
	StageAgenceBrute       = "agence_brute"
	StageAgenceNotExisting = "agence_notexisting"
	StageImageProcessor    = "process_and_transfer"
)

var knownStages = map[string]bool{
	StageBulkCrawl:         true,
	StageLoopScraper:       true,
	StageAgenceBrute:       true,
	StageAgenceNotExisting: true,
	StageImageProcessor:    true,
}

// ControlHandler exposes the Supervisor through the §6 HTTP contract.
type ControlHandler struct {
	supervisor *scheduler.Supervisor
	store      *store.Store
}

func NewControlHandler(sup *scheduler.Supervisor, s *store.Store) *ControlHandler {
	return &ControlHandler{supervisor: sup, store: s}
}

func stateStatus(st scheduler.State) string {
	if st.Running {
		return "running"
	}
	return "idle"
}

func (h *ControlHandler) start(c *gin.Context, stageName string) {
	st, ok := h.supervisor.Start(c.Request.Context(), stageName)
	if !ok {
		utils.SendStatus(c, http.StatusBadRequest, "error", "unknown task: "+stageName)
		return
	}
	utils.SendStatus(c, http.StatusOK, "started", stageName+" "+stateStatus(st))
}

// StartBulkCrawl handles GET /api/v1/scrape/100_pages.
func (h *ControlHandler) StartBulkCrawl(c *gin.Context) { h.start(c, StageBulkCrawl) }

// StartLoop handles GET /api/v1/scrape/loop.
func (h *ControlHandler) StartLoop(c *gin.Context) { h.start(c, StageLoopScraper) }

// StartAgenceBrute handles GET /api/v1/scrape/agence_brute.
func (h *ControlHandler) StartAgenceBrute(c *gin.Context) { h.start(c, StageAgenceBrute) }

// StartAgenceNotExisting handles GET /api/v1/scrape/agence_notexisting.
func (h *ControlHandler) StartAgenceNotExisting(c *gin.Context) { h.start(c, StageAgenceNotExisting) }

// StartImageProcessor handles GET /api/v1/scrape/process_and_transfer?instances=N
// (1 <= N <= 10, §6). N is only validated: the processor's worker count is
// the one configured at startup (PROCESSOR_INSTANCES), and N does not
// change it.
func (h *ControlHandler) StartImageProcessor(c *gin.Context) {
	instancesParam := c.DefaultQuery("instances", "5")
	instances, err := strconv.Atoi(instancesParam)
	if err != nil || instances < 1 || instances > 10 {
		utils.SendStatus(c, http.StatusBadRequest, "error", "instances must be an integer in [1, 10]")
		return
	}
	h.start(c, StageImageProcessor)
}

// Stop handles GET /api/v1/stop/:task_name.
func (h *ControlHandler) Stop(c *gin.Context) {
	name := c.Param("task_name")
	if !knownStages[name] {
		utils.SendStatus(c, http.StatusBadRequest, "error", "unknown task: "+name)
		return
	}
	st, _ := h.supervisor.Stop(name)
	utils.SendStatus(c, http.StatusOK, "stopped", name+" "+stateStatus(st))
}

// StatusEntry is one stage's entry in the /api/v1/status response. Pending
// is the cheap "remaining work" gauge carried over from the original cron
// loop's pre-flight count_documents checks — omitted for stages that don't
// have a meaningful backlog count.
type StatusEntry struct {
	Status  string `json:"status"`
	Pending *int64 `json:"pending,omitempty"`
}

// Status handles GET /api/v1/status.
func (h *ControlHandler) Status(c *gin.Context) {
	all := h.supervisor.StatusAll()
	pending := h.pendingCounts(c.Request.Context())

	out := make(map[string]StatusEntry, len(all))
	for name, st := range all {
		entry := StatusEntry{Status: stateStatus(st)}
		if n, ok := pending[name]; ok {
			entry.Pending = &n
		}
		out[name] = entry
	}
	c.JSON(http.StatusOK, out)
}

// pendingCounts reports backlog size for the stages where a cheap count
// means something. agence_notexisting's backlog is Raw records not marked
// noAgencyFound (this includes records already copied into WithAgency,
// which RunOnce skips); agence_brute's is a different collection entirely — AgencyBrute
// rows never visited on their own page — since it is a standalone
// enrichment sweep, not a pass over Raw. Count errors are swallowed — the
// gauge is informational, never something a caller should block a stage
// start on.
func (h *ControlHandler) pendingCounts(ctx context.Context) map[string]int64 {
	out := make(map[string]int64, 3)

	if n, err := h.store.Raw.CountDocuments(ctx, agency.PendingResolveFilter()); err == nil {
		out[StageAgenceNotExisting] = n
	}

	if n, err := h.store.AgencyBrute.CountDocuments(ctx, agency.PendingEnrichFilter()); err == nil {
		out[StageAgenceBrute] = n
	}

	notProcessed := bson.M{"processed": bson.M{"$ne": true}}
	if n, err := h.store.WithAgency.CountDocuments(ctx, notProcessed); err == nil {
		out[StageImageProcessor] = n
	}

	return out
}

// Health handles GET /api/v1/health: liveness plus a UTC timestamp (§6),
// and the store's connectivity per the original health-check texture.
func (h *ControlHandler) Health(c *gin.Context) {
	if err := h.store.Health(c.Request.Context()); err != nil {
		utils.SendStatus(c, http.StatusServiceUnavailable, "error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
