package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore-sis/internal/assessment"
	auth "github.com/campuscore/campuscore-sis/internal/auth/middleware"
)

type manualGradeReq struct {
	// Keyed by question id.
	Items           map[string]assessment.ManualGradeInput `json:"items" validate:"required,min=1"`
	OverallFeedback string                                 `json:"overall_feedback"`
}

// ApplyManualGradesHandler handles POST /api/v1/attempts/{attemptID}/grades.
// Reconciles instructor scores with auto-graded results and finalizes the
// attempt; re-grading a graded attempt is allowed and recomputes totals.
func ApplyManualGradesHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req manualGradeReq
		if err := decodeValid(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		a, err := store.ApplyManualGrades(r.Context(),
			chi.URLParam(r, "attemptID"),
			req.Items,
			req.OverallFeedback,
			auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// PendingGradingHandler handles GET /api/v1/grading/pending: submitted
// attempts waiting on manual scores, optionally filtered by test_id.
func PendingGradingHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		items, err := store.ListAttempts(r.Context(), assessment.AttemptListOpts{
			TestID: q.Get("test_id"),
			Status: string(assessment.AttemptSubmitted),
			Sort:   "submitted_at",
			Limit:  queryInt(q.Get("limit"), 50),
			Offset: queryInt(q.Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempts": items, "count": len(items)})
	}
}
