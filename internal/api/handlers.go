package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/discovery"
	"github.com/yourusername/cloudcity/internal/gate"
	"github.com/yourusername/cloudcity/internal/health"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/project"
)

// projects

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in project.CreateInput
	if err := decode(r, &in, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.Projects.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, newProjectView(p))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.Projects.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, newProjectView(p))
	}
	jsonResponse(w, http.StatusOK, views)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, newProjectView(projectFrom(r)))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var patch project.Patch
	if err := decode(r, &patch, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.Projects.Update(r.Context(), projectFrom(r).ID, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, newProjectView(p))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Projects.Delete(r.Context(), projectFrom(r).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cost

func (s *Server) handleCostDelta(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Costs.Delta(r.Context(), projectFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, newCostDeltaView(d))
}

func (s *Server) handleLatestCost(w http.ResponseWriter, r *http.Request) {
	id := projectFrom(r).ID
	snap, ok, err := s.svc.Costs.Latest(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		// first read of a project without a snapshot takes one
		if snap, err = s.svc.Costs.Recompute(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	jsonResponse(w, http.StatusOK, newSnapshotView(snap))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Costs.Recompute(r.Context(), projectFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, newSnapshotView(snap))
}

type policyRequest struct {
	ProjectedMonthlyDelta *decimal.Decimal `json:"projectedMonthlyDelta"`
}

func (s *Server) handlePolicyCheck(w http.ResponseWriter, r *http.Request) {
	var body policyRequest
	if err := decode(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	delta := decimal.Zero
	if body.ProjectedMonthlyDelta != nil {
		delta = *body.ProjectedMonthlyDelta
	}
	result, err := s.svc.Gate.PolicyCheck(r.Context(), projectFrom(r).ID, delta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPolicyView(result))
}

// graph

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	id := projectFrom(r).ID
	nodes, err := s.svc.Graph.ListNodes(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	edges, err := s.svc.Graph.ListEdges(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, newGraphView(nodes, edges))
}

func (s *Server) handleGraphSummary(w http.ResponseWriter, r *http.Request) {
	n, err := s.topN(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.svc.Graph.Summary(r.Context(), projectFrom(r).ID, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, newSummaryView(sum))
}

func (s *Server) handleGraphHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Health.Analyze(r.Context(), projectFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if report.Issues == nil {
		report.Issues = []health.Issue{}
	}
	jsonResponse(w, http.StatusOK, report)
}

// pipeline gate

type checkRequest struct {
	ProjectedMonthlyDelta *decimal.Decimal `json:"projectedMonthlyDelta"`
	StrictMode            bool             `json:"strictMode"`
}

func (s *Server) handlePipelineCheck(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := decode(r, &body, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	req := gate.Request{ProjectedMonthlyDelta: decimal.Zero, StrictMode: body.StrictMode}
	if body.ProjectedMonthlyDelta != nil {
		req.ProjectedMonthlyDelta = *body.ProjectedMonthlyDelta
	}
	result, err := s.svc.Gate.Check(r.Context(), projectFrom(r).ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, newGateView(result))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Audit.List(r.Context(), projectFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// discoveries

func (s *Server) handleCreateDiscovery(w http.ResponseWriter, r *http.Request) {
	var req discovery.CreateRequest
	if err := decode(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	run, err := s.svc.Discoveries.Create(r.Context(), projectFrom(r).ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, run)
}

func (s *Server) handleListDiscoveries(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.Discoveries.List(r.Context(), projectFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []models.DiscoveryRun{}
	}
	jsonResponse(w, http.StatusOK, runs)
}

func (s *Server) handleGetDiscovery(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Discoveries.Get(r.Context(), projectFrom(r).ID, chi.URLParam(r, "discoveryID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleExecuteDiscovery(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Discoveries.Execute(r.Context(), projectFrom(r).ID, chi.URLParam(r, "discoveryID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, run)
}

func (s *Server) handleCancelDiscovery(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Discoveries.Cancel(r.Context(), projectFrom(r).ID, chi.URLParam(r, "discoveryID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Discoveries.Status(r.Context(), projectFrom(r).ID, chi.URLParam(r, "discoveryID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

// terraform exports

type approveRequest struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Exports.CreatePlan(r.Context(), projectFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, e)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := s.svc.Exports.List(r.Context(), projectFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if exports == nil {
		exports = []models.TerraformExport{}
	}
	jsonResponse(w, http.StatusOK, exports)
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Exports.Get(r.Context(), projectFrom(r).ID, chi.URLParam(r, "exportID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, e)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body approveRequest
	if err := decode(r, &body, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Approved == nil {
		s.writeError(w, r, apperr.Validation("approved is required"))
		return
	}
	e, err := s.svc.Exports.Approve(r.Context(), projectFrom(r).ID, chi.URLParam(r, "exportID"), *body.Approved, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, e)
}

// handleApply answers a failed apply with the error status; the export it
// left behind stays readable through the export endpoint.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Exports.Apply(r.Context(), projectFrom(r).ID, chi.URLParam(r, "exportID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, e)
}
