package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/slidesmith/slidesmith/internal/errors"
	"github.com/slidesmith/slidesmith/internal/variant"
)

// withRouteParam injects a chi URL parameter the way the router would.
func withRouteParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type stubCatalog struct {
	specs map[string]*variant.Spec
	err   error
}

func (s *stubCatalog) List() ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, 0, len(s.specs))
	for id := range s.specs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubCatalog) Load(variantID string) (*variant.Spec, error) {
	spec, ok := s.specs[variantID]
	if !ok {
		return nil, &variant.NotFoundError{VariantID: variantID}
	}
	return spec, nil
}

func catalogWithSpecs() *stubCatalog {
	return &stubCatalog{specs: map[string]*variant.Spec{
		"matrix_2x2": {
			VariantID:    "matrix_2x2",
			Title:        "2x2 Matrix",
			TemplatePath: "templates/matrix_2x2.html",
			Elements: []variant.ElementDef{
				{ElementID: "box_1", RequiredFields: []string{"title", "body"}},
				{ElementID: "box_2", RequiredFields: []string{"title", "body"}},
				{ElementID: "box_3", RequiredFields: []string{"title", "body"}},
				{ElementID: "box_4", RequiredFields: []string{"title", "body"}},
			},
		},
		"hero_centered": {
			VariantID:    "hero_centered",
			Hero:         true,
			TemplatePath: "templates/hero_centered.html",
			Elements: []variant.ElementDef{
				{ElementID: "headline", RequiredFields: []string{"title"}},
			},
			Background: &variant.Background{Enabled: true, AspectRatio: "16:9"},
		},
	}}
}

func TestVariantsListReturnsDescriptors(t *testing.T) {
	h := NewVariantsHandler(catalogWithSpecs())

	req := httptest.NewRequest(http.MethodGet, "/variants", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp VariantListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Count != 2 || len(resp.Variants) != 2 {
		t.Fatalf("expected 2 variants, got count=%d len=%d", resp.Count, len(resp.Variants))
	}

	byID := map[string]VariantDescriptor{}
	for _, d := range resp.Variants {
		byID[d.VariantID] = d
	}

	matrix, ok := byID["matrix_2x2"]
	if !ok {
		t.Fatal("matrix_2x2 missing from listing")
	}
	if matrix.ElementCount != 4 || matrix.HasBackground {
		t.Fatalf("unexpected matrix descriptor: %+v", matrix)
	}

	hero, ok := byID["hero_centered"]
	if !ok {
		t.Fatal("hero_centered missing from listing")
	}
	if !hero.Hero || !hero.HasBackground || hero.ElementCount != 1 {
		t.Fatalf("unexpected hero descriptor: %+v", hero)
	}
}

func TestVariantsListFailure(t *testing.T) {
	h := NewVariantsHandler(&stubCatalog{err: errors.New("disk gone")})

	req := httptest.NewRequest(http.MethodGet, "/variants", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if body.Error.Code != "INTERNAL_ERROR" {
		t.Fatalf("expected INTERNAL_ERROR, got %s", body.Error.Code)
	}
}

func TestVariantsGetReturnsSpec(t *testing.T) {
	h := NewVariantsHandler(catalogWithSpecs())

	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/variants/hero_centered", nil), "variant_id", "hero_centered")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var spec variant.Spec
	if err := json.NewDecoder(rec.Body).Decode(&spec); err != nil {
		t.Fatalf("failed to decode spec: %v", err)
	}
	if spec.VariantID != "hero_centered" || spec.Background == nil || !spec.Background.Enabled {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestVariantsGetUnknown(t *testing.T) {
	h := NewVariantsHandler(catalogWithSpecs())

	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/variants/grid_3x3", nil), "variant_id", "grid_3x3")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", body.Error.Code)
	}
}
