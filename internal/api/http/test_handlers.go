package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore-sis/internal/assessment"
	auth "github.com/campuscore/campuscore-sis/internal/auth/middleware"
	"github.com/campuscore/campuscore-sis/internal/rbac"
)

type createTestReq struct {
	Title              string   `json:"title" validate:"required"`
	Description        string   `json:"description"`
	SubjectID          string   `json:"subject_id"`
	GroupID            string   `json:"group_id"`
	DurationMin        *int     `json:"duration_min" validate:"omitempty,gte=1"`
	PassingScore       *float64 `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	AttemptLimit       int      `json:"attempt_limit" validate:"omitempty,gte=1"`
	RandomizeQuestions bool     `json:"randomize_questions"`
	RandomizeAnswers   bool     `json:"randomize_answers"`
	ShowCorrectAnswers bool     `json:"show_correct_answers"`
	AllowReview        bool     `json:"allow_review"`
	StartAt            *int64   `json:"start_at"`
	EndAt              *int64   `json:"end_at"`
}

// canManageTest gates mutations to the owning instructor; admins pass
// unconditionally. Returns the test so handlers avoid a second load.
func canManageTest(ctx context.Context, store assessment.Store, testID string) (assessment.Test, bool, error) {
	t, err := store.GetTest(ctx, testID, true)
	if err != nil {
		return assessment.Test{}, false, err
	}
	role := rbac.RoleFromContext(ctx)
	if role == "admin" {
		return t, true, nil
	}
	return t, t.OwnerID == auth.SubjectFromContext(ctx), nil
}

// CreateTestHandler handles POST /api/v1/tests.
func CreateTestHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTestReq
		if err := decodeValid(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		t, err := store.CreateTest(r.Context(), assessment.Test{
			Title:              req.Title,
			Description:        req.Description,
			SubjectID:          req.SubjectID,
			GroupID:            req.GroupID,
			OwnerID:            auth.SubjectFromContext(r.Context()),
			DurationMin:        req.DurationMin,
			PassingScore:       req.PassingScore,
			AttemptLimit:       req.AttemptLimit,
			RandomizeQuestions: req.RandomizeQuestions,
			RandomizeAnswers:   req.RandomizeAnswers,
			ShowCorrectAnswers: req.ShowCorrectAnswers,
			AllowReview:        req.AllowReview,
			StartAt:            req.StartAt,
			EndAt:              req.EndAt,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

// GetTestHandler handles GET /api/v1/tests/{testID}. Answer keys are included
// only for roles holding test:view-keys; students see published tests only.
func GetTestHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		role := rbac.RoleFromContext(r.Context())
		withKeys := rbac.Has(role, "test:view-keys")
		t, err := store.GetTest(r.Context(), id, withKeys)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !withKeys && !t.Published {
			writeErr(w, assessment.NotFoundf("test %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// UpdateTestHandler handles PATCH /api/v1/tests/{testID}. Absent fields are
// left untouched; derived aggregates are never settable.
func UpdateTestHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		if _, ok, err := canManageTest(r.Context(), store, id); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		var upd assessment.TestUpdate
		if err := decodeValid(r, &upd); err != nil {
			writeErr(w, err)
			return
		}
		t, err := store.UpdateTest(r.Context(), id, upd)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func DeleteTestHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		if _, ok, err := canManageTest(r.Context(), store, id); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		if err := store.DeleteTest(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// DuplicateTestHandler handles POST /api/v1/tests/{testID}/duplicate. The
// caller becomes owner of the unpublished copy.
func DuplicateTestHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		t, err := store.DuplicateTest(r.Context(), id, auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func PublishTestHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		if _, ok, err := canManageTest(r.Context(), store, id); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		t, err := store.PublishTest(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func UnpublishTestHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		if _, ok, err := canManageTest(r.Context(), store, id); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		t, err := store.UnpublishTest(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// ListTestsHandler handles GET /api/v1/tests with q, subject_id, published,
// limit and offset query params. Students are confined to published tests by
// the store regardless of the published param.
func ListTestsHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := assessment.TestListOpts{
			Q:          q.Get("q"),
			SubjectID:  q.Get("subject_id"),
			Limit:      queryInt(q.Get("limit"), 50),
			Offset:     queryInt(q.Get("offset"), 0),
			ViewerRole: rbac.RoleFromContext(r.Context()),
		}
		if v := q.Get("published"); v != "" {
			b := v == "true" || v == "1"
			opts.Published = &b
		}
		items, err := store.ListTests(r.Context(), opts)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tests": items, "count": len(items)})
	}
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
