package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/placebook/placebook/internal/auth"
	"github.com/placebook/placebook/internal/imagestore"
	"github.com/placebook/placebook/internal/pkg/httputil"
	"github.com/placebook/placebook/internal/pkg/logger"
	"github.com/placebook/placebook/internal/service/place"
)

// multipartOverhead leaves room for the text fields next to the image.
const multipartOverhead = 1 << 20

const imageCleanupTimeout = 10 * time.Second

// PlacesHandler serves /api/places.
type PlacesHandler struct {
	svc       *place.Service
	images    imagestore.Store
	maxUpload int64
	log       *logger.Logger
}

// NewPlacesHandler creates the handler. maxUpload bounds the image part of
// a create request; zero uses imagestore.DefaultMaxBytes.
func NewPlacesHandler(svc *place.Service, images imagestore.Store, maxUpload int64, log *logger.Logger) *PlacesHandler {
	if maxUpload <= 0 {
		maxUpload = imagestore.DefaultMaxBytes
	}
	if log == nil {
		log = logger.Default()
	}
	return &PlacesHandler{svc: svc, images: images, maxUpload: maxUpload, log: log.With("component", "api.places")}
}

// GetPlace handles GET /api/places/{pid}.
func (h *PlacesHandler) GetPlace(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetPlace(r.Context(), chi.URLParam(r, "pid"))
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"place": v})
}

// ListByOwner handles GET /api/places/user/{uid}.
func (h *PlacesHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListByOwner(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"places": views})
}

// Create handles POST /api/places as multipart/form-data with title,
// description, address and an image file. The stored image is released
// again if the place cannot be created.
func (h *PlacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "Unauthenticated", "Authentication failed!")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondFailure(w, r, fmt.Errorf("%w: multipart form: %v", place.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := place.CreateInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Address:     r.FormValue("address"),
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// The service reports the missing image with the other field errors.
	case err != nil:
		respondFailure(w, r, fmt.Errorf("%w: image: %v", place.ErrValidation, err))
		return
	default:
		ref, err := h.images.Save(r.Context(), header.Filename, file)
		file.Close()
		if err != nil {
			h.respondImageError(w, r, err)
			return
		}
		in.ImageRef = ref
	}

	v, err := h.svc.Create(r.Context(), principal.UserID, in)
	if err != nil {
		h.discardImage(r.Context(), in.ImageRef)
		respondFailure(w, r, err)
		return
	}
	httputil.Created(w, map[string]interface{}{"place": v})
}

// Update handles PATCH /api/places/{pid} with a JSON body of title and
// description.
func (h *PlacesHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "Unauthenticated", "Authentication failed!")
		return
	}

	var in place.UpdateInput
	if err := httputil.Decode(r, &in); err != nil {
		respondFailure(w, r, fmt.Errorf("%w: %v", place.ErrValidation, err))
		return
	}

	v, err := h.svc.Update(r.Context(), principal.UserID, chi.URLParam(r, "pid"), in)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"place": v})
}

// Delete handles DELETE /api/places/{pid}.
func (h *PlacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "Unauthenticated", "Authentication failed!")
		return
	}

	if err := h.svc.Delete(r.Context(), principal.UserID, chi.URLParam(r, "pid")); err != nil {
		respondFailure(w, r, err)
		return
	}
	httputil.Message(w, "Deleted place.")
}

func (h *PlacesHandler) respondImageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, imagestore.ErrUnsupportedImage) || errors.Is(err, imagestore.ErrTooLarge) {
		respondFailure(w, r, fmt.Errorf("%w: %w", place.ErrValidation, err))
		return
	}
	respondFailure(w, r, fmt.Errorf("%w: storing image: %w", place.ErrCreateFailed, err))
}

func (h *PlacesHandler) discardImage(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), imageCleanupTimeout)
	defer cancel()
	if err := h.images.Release(ctx, ref); err != nil {
		h.log.Warn("could not discard uploaded image", "image", ref, "error", err)
	}
}
