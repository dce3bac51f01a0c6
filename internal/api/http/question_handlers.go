package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore-sis/internal/assessment"
)

type addQuestionReq struct {
	Text          string  `json:"text" validate:"required"`
	Type          string  `json:"type" validate:"required"`
	Points        float64 `json:"points" validate:"gt=0"`
	Required      bool    `json:"required"`
	AllowMultiple bool    `json:"allow_multiple"`
	CorrectBool   *bool   `json:"correct_bool"`
	CorrectText   string  `json:"correct_text"`
	CaseSensitive bool    `json:"case_sensitive"`
	WordLimit     *int    `json:"word_limit" validate:"omitempty,gte=1"`
	Explanation   string  `json:"explanation"`
	ImageKey      string  `json:"image_key"`

	Options []addOptionReq `json:"options" validate:"dive"`
}

type addOptionReq struct {
	Text      string `json:"text" validate:"required"`
	ImageKey  string `json:"image_key"`
	IsCorrect bool   `json:"is_correct"`
}

// AddQuestionHandler handles POST /api/v1/tests/{testID}/questions. Options
// may be supplied inline for multiple_choice questions.
func AddQuestionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		if _, ok, err := canManageTest(r.Context(), store, testID); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		var req addQuestionReq
		if err := decodeValid(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		q := assessment.Question{
			Text:          req.Text,
			Type:          assessment.QuestionType(req.Type),
			Points:        req.Points,
			Required:      req.Required,
			AllowMultiple: req.AllowMultiple,
			CorrectBool:   req.CorrectBool,
			CorrectText:   req.CorrectText,
			CaseSensitive: req.CaseSensitive,
			WordLimit:     req.WordLimit,
			Explanation:   req.Explanation,
			ImageKey:      req.ImageKey,
		}
		for i, o := range req.Options {
			q.Options = append(q.Options, assessment.AnswerOption{
				Text:      o.Text,
				ImageKey:  o.ImageKey,
				Position:  i,
				IsCorrect: o.IsCorrect,
			})
		}
		out, err := store.AddQuestion(r.Context(), testID, q)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// UpdateQuestionHandler handles PATCH /api/v1/tests/{testID}/questions/{questionID}.
func UpdateQuestionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := canManageTest(r.Context(), store, chi.URLParam(r, "testID")); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		var upd assessment.QuestionUpdate
		if err := decodeValid(r, &upd); err != nil {
			writeErr(w, err)
			return
		}
		q, err := store.UpdateQuestion(r.Context(), chi.URLParam(r, "testID"), chi.URLParam(r, "questionID"), upd)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func RemoveQuestionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := canManageTest(r.Context(), store, chi.URLParam(r, "testID")); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		if err := store.RemoveQuestion(r.Context(), chi.URLParam(r, "testID"), chi.URLParam(r, "questionID")); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}

func DuplicateQuestionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := canManageTest(r.Context(), store, chi.URLParam(r, "testID")); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		q, err := store.DuplicateQuestion(r.Context(), chi.URLParam(r, "testID"), chi.URLParam(r, "questionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

type reorderReq struct {
	QuestionIDs []string `json:"question_ids" validate:"required,min=1"`
}

// ReorderQuestionsHandler handles PUT /api/v1/tests/{testID}/questions/order.
// The body must list every active question of the test exactly once.
func ReorderQuestionsHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		if _, ok, err := canManageTest(r.Context(), store, testID); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		var req reorderReq
		if err := decodeValid(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		if err := store.ReorderQuestions(r.Context(), testID, req.QuestionIDs); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
	}
}

// AddOptionHandler handles POST /api/v1/tests/{testID}/questions/{questionID}/options.
func AddOptionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := canManageTest(r.Context(), store, chi.URLParam(r, "testID")); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		var req addOptionReq
		if err := decodeValid(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		o, err := store.AddOption(r.Context(), chi.URLParam(r, "testID"), chi.URLParam(r, "questionID"), assessment.AnswerOption{
			Text:      req.Text,
			ImageKey:  req.ImageKey,
			IsCorrect: req.IsCorrect,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
	}
}

func UpdateOptionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := canManageTest(r.Context(), store, chi.URLParam(r, "testID")); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		var upd assessment.OptionUpdate
		if err := decodeValid(r, &upd); err != nil {
			writeErr(w, err)
			return
		}
		o, err := store.UpdateOption(r.Context(), chi.URLParam(r, "testID"), chi.URLParam(r, "optionID"), upd)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func RemoveOptionHandler(store assessment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok, err := canManageTest(r.Context(), store, chi.URLParam(r, "testID")); err != nil {
			writeErr(w, err)
			return
		} else if !ok {
			writeForbidden(w)
			return
		}
		if err := store.RemoveOption(r.Context(), chi.URLParam(r, "testID"), chi.URLParam(r, "optionID")); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}
