package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/campuscore/campuscore-sis/internal/assessment"
)

func TestWriteErrStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{assessment.NotFoundf("test x not found"), http.StatusNotFound, "not_found"},
		{assessment.InvalidStatef("attempt is graded"), http.StatusConflict, "invalid_state"},
		{assessment.Conflictf("concurrent start"), http.StatusConflict, "conflict"},
		{assessment.LimitExceededf("attempt limit reached"), http.StatusUnprocessableEntity, "limit_exceeded"},
		{assessment.Validationf("bad input"), http.StatusBadRequest, "validation_failure"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeErr(rec, tc.err)
		if rec.Code != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body not json: %v", err)
		}
		if body["kind"] != tc.kind {
			t.Errorf("%v: kind = %v, want %s", tc.err, body["kind"], tc.kind)
		}
	}
}

func TestWriteErrIncludesFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, assessment.ValidationFields("invalid test", map[string]string{"title": "required"}))
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if body.Fields["title"] != "required" {
		t.Fatalf("fields = %v", body.Fields)
	}
}

func TestDecodeValidRejectsBadPayloads(t *testing.T) {
	req := httptest.NewRequest("POST", "/tests", strings.NewReader(`not json`))
	var dst createTestReq
	if err := decodeValid(req, &dst); assessment.KindOf(err) != assessment.KindValidation {
		t.Fatalf("malformed json: err = %v, want validation", err)
	}

	req = httptest.NewRequest("POST", "/tests", strings.NewReader(`{"description":"no title"}`))
	dst = createTestReq{}
	err := decodeValid(req, &dst)
	if assessment.KindOf(err) != assessment.KindValidation {
		t.Fatalf("missing title: err = %v, want validation", err)
	}
	if f := assessment.FieldsOf(err); f["title"] == "" {
		t.Fatalf("fields = %v, want title flagged", f)
	}

	req = httptest.NewRequest("POST", "/tests", strings.NewReader(`{"title":"ok","passing_score":150}`))
	dst = createTestReq{}
	if err := decodeValid(req, &dst); assessment.KindOf(err) != assessment.KindValidation {
		t.Fatalf("out-of-range passing score: err = %v, want validation", err)
	}

	req = httptest.NewRequest("POST", "/tests", strings.NewReader(`{"title":"ok","attempt_limit":3}`))
	dst = createTestReq{}
	if err := decodeValid(req, &dst); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}
