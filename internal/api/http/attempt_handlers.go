package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore-sis/internal/assessment"
	auth "github.com/campuscore/campuscore-sis/internal/auth/middleware"
	"github.com/campuscore/campuscore-sis/internal/rbac"
)

type startAttemptReq struct {
	TestID string `json:"test_id" validate:"required"`
}

// StartAttemptHandler handles POST /api/v1/attempts. The attempt is always
// opened for the authenticated subject; client metadata is stamped on it.
func StartAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startAttemptReq
		if err := decodeValid(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		a, err := store.StartAttempt(r.Context(), assessment.StartAttemptInput{
			TestID:    req.TestID,
			StudentID: auth.SubjectFromContext(r.Context()),
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// ownAttempt loads the attempt and checks the caller may act on it. Roles
// holding attempt:view-all pass for reads; writes always require ownership.
func ownAttempt(r *http.Request, store assessment.Store, readOnly bool) (assessment.Attempt, bool, error) {
	a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		return assessment.Attempt{}, false, err
	}
	if a.StudentID == auth.SubjectFromContext(r.Context()) {
		return a, true, nil
	}
	if readOnly && rbac.Has(rbac.RoleFromContext(r.Context()), "attempt:view-all") {
		return a, true, nil
	}
	return a, false, nil
}

// RecordAnswerHandler handles PUT /api/v1/attempts/{attemptID}/answers/{questionID}.
// Saves are idempotent per question; the latest response wins.
func RecordAnswerHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := ownAttempt(r, store, false); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		var in assessment.AnswerInput
		if err := decodeValid(r, &in); err != nil {
			writeErr(w, err)
			return
		}
		ans, err := store.RecordAnswer(r.Context(), chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"), in)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}

// SubmitAttemptHandler handles POST /api/v1/attempts/{attemptID}/submit.
func SubmitAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := ownAttempt(r, store, false); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		a, err := store.SubmitAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GetAttemptHandler handles GET /api/v1/attempts/{attemptID}.
func GetAttemptHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok, err := ownAttempt(r, store, true)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !ok {
			writeForbidden(w)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ListAttemptsHandler handles GET /api/v1/attempts with test_id, student_id,
// status, passed, sort, limit and offset params. Callers without
// attempt:view-all are pinned to their own attempts.
func ListAttemptsHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := assessment.AttemptListOpts{
			TestID:    q.Get("test_id"),
			StudentID: q.Get("student_id"),
			Status:    q.Get("status"),
			Sort:      q.Get("sort"),
			Limit:     queryInt(q.Get("limit"), 50),
			Offset:    queryInt(q.Get("offset"), 0),
		}
		if v := q.Get("passed"); v != "" {
			b := v == "true" || v == "1"
			opts.Passed = &b
		}
		if !rbac.Has(rbac.RoleFromContext(r.Context()), "attempt:view-all") {
			opts.StudentID = auth.SubjectFromContext(r.Context())
		}
		items, err := store.ListAttempts(r.Context(), opts)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempts": items, "count": len(items)})
	}
}
