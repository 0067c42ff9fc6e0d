package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/warehouse/internal/importer"
	"github.com/JonMunkholm/warehouse/internal/logging"
)

// multipartOverhead allows for boundaries and form fields around the file.
const multipartOverhead = 1 << 20

type parseResponse struct {
	FileName         string                     `json:"file_name"`
	Profile          string                     `json:"profile"`
	Headers          []string                   `json:"headers"`
	Rows             []importer.ParsedRow       `json:"rows"`
	Mapping          []importer.ColumnMapping   `json:"mapping"`
	UnmappedRequired []string                   `json:"unmapped_required"`
	Required         []importer.FieldDefinition `json:"required"`
	Optional         []importer.FieldDefinition `json:"optional"`
}

type mapResponse struct {
	Mapping          []importer.ColumnMapping `json:"mapping"`
	UnmappedRequired []string                 `json:"unmapped_required"`
}

type profilesResponse struct {
	Default  string             `json:"default"`
	Profiles []importer.Profile `json:"profiles"`
}

type executeResponse struct {
	Success bool            `json:"success"`
	Results importer.Result `json:"results"`
	Message string          `json:"message"`
}

// handleParse reads an uploaded CSV or XLSX file and proposes a mapping.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", importer.ErrFileTooLarge, maxSize), 0)
			return
		}
		s.respondError(w, r, fmt.Errorf("invalid request: %w", err), 0)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), 0)
		return
	}
	defer file.Close()

	profileKey := r.FormValue("profile")
	profile, err := s.service.ResolveProfile(profileKey)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	parsed, mapping, err := s.service.ParseUpload(file, header.Filename, profileKey)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	report, err := importer.ValidateMapping(mapping, parsed.Headers, profile)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.FromContext(r.Context()).Info("file parsed",
		"file", parsed.FileName,
		"columns", len(parsed.Headers),
		"rows", len(parsed.Rows),
		"mapped", len(mapping),
		"profile", profile.Key,
	)

	writeJSON(w, http.StatusOK, parseResponse{
		FileName:         parsed.FileName,
		Profile:          profile.Key,
		Headers:          parsed.Headers,
		Rows:             orEmpty(parsed.Rows),
		Mapping:          orEmpty(mapping),
		UnmappedRequired: orEmpty(report.UnmappedRequired),
		Required:         profile.Required,
		Optional:         profile.Optional,
	})
}

// handleProfiles lists the field catalogs a sheet can be mapped against.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, profilesResponse{
		Default:  s.service.Profile().Key,
		Profiles: importer.Profiles(),
	})
}

// handleMap proposes a mapping for headers, or checks an edited one when
// the request carries it.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	profile, err := s.service.ResolveProfile(req.Profile)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	mapping := req.Mapping
	if mapping == nil {
		mapping = importer.AutoMapProfile(req.Headers, profile)
	}

	report, err := importer.ValidateMapping(mapping, req.Headers, profile)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, mapResponse{
		Mapping:          orEmpty(mapping),
		UnmappedRequired: orEmpty(report.UnmappedRequired),
	})
}

// handlePrecheck reports pallet numbers and SKUs in the file that already
// exist. The answer is advisory; execution still enforces uniqueness.
func (s *Server) handlePrecheck(w http.ResponseWriter, r *http.Request) {
	var req precheckRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	keys, err := s.service.Precheck(r.Context(), req.Rows, req.Mapping)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	writeJSON(w, http.StatusOK, importer.ExistingKeys{
		Pallets: orEmpty(keys.Pallets),
		SKUs:    orEmpty(keys.SKUs),
	})
}

func (s *Server) handleCheckPallets(w http.ResponseWriter, r *http.Request) {
	var req checkPalletsRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	existing, err := s.service.CheckPallets(r.Context(), req.PalletNumbers)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"existing_pallets": orEmpty(existing)})
}

func (s *Server) handleCheckSKUs(w http.ResponseWriter, r *http.Request) {
	var req checkSKUsRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	existing, err := s.service.CheckSKUs(r.Context(), req.SKUs)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"existing_skus": orEmpty(existing)})
}

// handleExecute imports the rows and waits for the result. Row failures are
// reported in the body; the request itself succeeds.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	res, err := s.service.Execute(r.Context(), req.Rows)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, newExecuteResponse(res))
}

// handleStartRun starts an import and returns its run ID at once.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	id, err := s.service.StartRun(r.Context(), req.Rows)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Location", "/api/import/runs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if st.Result != nil {
		st.Result.Errors = orEmpty(st.Result.Errors)
	}
	writeJSON(w, http.StatusOK, st)
}

// handleRunResult waits for a run and returns the same body as execute.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Wait(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, newExecuteResponse(*res))
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if err := s.service.Cancel(id); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	logging.FromContext(r.Context()).Info("import cancel requested", "run_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": "cancelling"})
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_runs": s.service.Limiter().Status(),
	})
}

func newExecuteResponse(res importer.Result) executeResponse {
	res.Errors = orEmpty(res.Errors)
	return executeResponse{
		Success: true,
		Results: res,
		Message: completionMessage(res),
	}
}

func completionMessage(res importer.Result) string {
	return fmt.Sprintf("Import completed: %d succeeded, %d failed", res.Success, res.Failed)
}

// orEmpty keeps nil slices from encoding as null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
