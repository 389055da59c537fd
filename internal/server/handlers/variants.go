package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/slidesmith/slidesmith/internal/errors"
	"github.com/slidesmith/slidesmith/internal/variant"
)

// VariantCatalog is the read surface the variant discovery endpoints need.
// *variant.Loader is the production implementation.
type VariantCatalog interface {
	List() ([]string, error)
	Load(variantID string) (*variant.Spec, error)
}

// VariantDescriptor summarizes one loaded variant for the listing endpoint.
type VariantDescriptor struct {
	VariantID     string `json:"variant_id"`
	Title         string `json:"title,omitempty"`
	Hero          bool   `json:"hero,omitempty"`
	ElementCount  int    `json:"element_count"`
	HasBackground bool   `json:"has_background"`
}

// VariantListResponse is the GET /variants body.
type VariantListResponse struct {
	Variants []VariantDescriptor `json:"variants"`
	Count    int                 `json:"count"`
}

// VariantsHandler serves the supplemental variant discovery endpoints.
type VariantsHandler struct {
	catalog VariantCatalog
}

// NewVariantsHandler wires the variant catalog.
func NewVariantsHandler(catalog VariantCatalog) *VariantsHandler {
	return &VariantsHandler{catalog: catalog}
}

// List handles GET /variants. Variants that fail to load are omitted from
// the listing rather than failing it; the load error will resurface with a
// proper diagnostic when the variant is requested directly.
func (h *VariantsHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.catalog.List()
	if err != nil {
		apperrors.RespondWithError(w, r,
			apperrors.WrapInternal(r.Context(), err, "variant listing failed"))
		return
	}

	descriptors := make([]VariantDescriptor, 0, len(ids))
	for _, id := range ids {
		spec, err := h.catalog.Load(id)
		if err != nil {
			continue
		}
		descriptors = append(descriptors, VariantDescriptor{
			VariantID:     spec.VariantID,
			Title:         spec.Title,
			Hero:          spec.Hero,
			ElementCount:  len(spec.Elements),
			HasBackground: spec.HasBackground(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(VariantListResponse{
		Variants: descriptors,
		Count:    len(descriptors),
	})
}

// Get handles GET /variants/{variant_id}, returning the full spec.
func (h *VariantsHandler) Get(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variant_id")

	spec, err := h.catalog.Load(variantID)
	if err != nil {
		var notFound *variant.NotFoundError
		if errors.As(err, &notFound) {
			apperrors.RespondWithError(w, r,
				apperrors.NewNotFoundError(fmt.Sprintf("variant %s is not registered", variantID)))
			return
		}
		apperrors.RespondWithError(w, r,
			apperrors.WrapInternal(r.Context(), err, fmt.Sprintf("variant %s failed to load", variantID)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(spec)
}
