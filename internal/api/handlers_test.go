package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placebook/placebook/internal/auth"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/domain"
	"github.com/placebook/placebook/internal/geocoder"
	"github.com/placebook/placebook/internal/imagestore"
	"github.com/placebook/placebook/internal/repository/memory"
	"github.com/placebook/placebook/internal/service/place"
)

type geoFunc func(ctx context.Context, address string) (domain.Location, error)

func (f geoFunc) Resolve(ctx context.Context, address string) (domain.Location, error) {
	return f(ctx, address)
}

type testEnv struct {
	handler  http.Handler
	store    *memory.Store
	tokens   *auth.Tokens
	imageDir string
	alice    *domain.User
	bob      *domain.User
}

func newTestEnv(t *testing.T, geo geocoder.Resolver) *testEnv {
	t.Helper()
	if geo == nil {
		geo = geocoder.NewStatic(40.7484405, -73.9878584)
	}

	store := memory.New()
	ctx := context.Background()
	alice := &domain.User{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, store.CreateUser(ctx, alice))
	bob := &domain.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, store.CreateUser(ctx, bob))

	imageDir := t.TempDir()
	images, err := imagestore.NewLocal(imageDir, imagestore.Options{})
	require.NoError(t, err)

	tokens := auth.NewTokens("test-secret", time.Hour)
	svc := place.NewService(store, geo, place.Options{Images: images})

	srv := NewServer(config.ServerConfig{}, Deps{
		Places:   svc,
		Images:   images,
		Tokens:   tokens,
		Health:   NewHealthChecker(store, nil, nil, nil),
		ImageDir: imageDir,
	})

	return &testEnv{
		handler:  srv.Handler(),
		store:    store,
		tokens:   tokens,
		imageDir: imageDir,
		alice:    alice,
		bob:      bob,
	}
}

func (e *testEnv) token(t *testing.T, u *domain.User) string {
	t.Helper()
	tok, err := e.tokens.Issue(u.ID, u.Email)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func createRequest(t *testing.T, fields map[string]string, img []byte, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		fw, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/places", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"title":       "Empire State Building",
		"description": "One of the most famous sky scrapers in the world!",
		"address":     "20 W 34th St, New York, NY 10001",
	}
}

type placeEnvelope struct {
	Place domain.PlaceView `json:"place"`
}

type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createPlace(t *testing.T, owner *domain.User, title string) domain.PlaceView {
	t.Helper()
	fields := validFields()
	fields["title"] = title
	rec := e.do(createRequest(t, fields, pngImage(t), e.token(t, owner)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[placeEnvelope](t, rec).Place
}

func imageFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreatePlace(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(createRequest(t, validFields(), pngImage(t), env.token(t, env.alice)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p := decodeBody[placeEnvelope](t, rec).Place
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Empire State Building", p.Title)
	assert.Equal(t, env.alice.ID, p.Creator)
	assert.InDelta(t, 40.7484405, p.Location.Lat, 1e-9)
	assert.True(t, strings.HasPrefix(p.Image, "uploads/images/"))
	assert.Len(t, imageFiles(t, env.imageDir), 1)

	// Stored image is served.
	img := env.do(httptest.NewRequest(http.MethodGet, "/"+p.Image, nil))
	assert.Equal(t, http.StatusOK, img.Code)

	u, err := env.store.GetUser(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, u.PlaceIDs)
}

func TestCreatePlace_RequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(createRequest(t, validFields(), pngImage(t), ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication failed!", decodeBody[errorEnvelope](t, rec).Error)
	assert.Empty(t, imageFiles(t, env.imageDir))
}

func TestCreatePlace_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, env.alice)

	t.Run("short description", func(t *testing.T) {
		fields := validFields()
		fields["description"] = "abc"
		rec := env.do(createRequest(t, fields, pngImage(t), token))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeBody[errorEnvelope](t, rec)
		assert.Equal(t, "ValidationFailed", body.Code)
		assert.Equal(t, "Invalid inputs passed, please check your data.", body.Error)
	})

	t.Run("missing image", func(t *testing.T) {
		rec := env.do(createRequest(t, validFields(), nil, token))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("not an image", func(t *testing.T) {
		rec := env.do(createRequest(t, validFields(), []byte("plain text"), token))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	assert.Empty(t, imageFiles(t, env.imageDir))
}

func TestCreatePlace_UnresolvableAddressDiscardsImage(t *testing.T) {
	env := newTestEnv(t, geoFunc(func(context.Context, string) (domain.Location, error) {
		return domain.Location{}, geocoder.ErrAddressNotResolvable
	}))

	rec := env.do(createRequest(t, validFields(), pngImage(t), env.token(t, env.alice)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[errorEnvelope](t, rec)
	assert.Equal(t, "AddressNotResolvable", body.Code)
	assert.Equal(t, "Could not find location for the specified address.", body.Error)
	assert.Empty(t, imageFiles(t, env.imageDir))
}

func TestCreatePlace_UpstreamDown(t *testing.T) {
	env := newTestEnv(t, geoFunc(func(context.Context, string) (domain.Location, error) {
		return domain.Location{}, geocoder.ErrUpstreamUnavailable
	}))

	rec := env.do(createRequest(t, validFields(), pngImage(t), env.token(t, env.alice)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UpstreamUnavailable", decodeBody[errorEnvelope](t, rec).Code)
}

func TestCreatePlace_AttachFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.FailOn(memory.OpAttachPlace, errors.New("write conflict"))

	rec := env.do(createRequest(t, validFields(), pngImage(t), env.token(t, env.alice)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[errorEnvelope](t, rec)
	assert.Equal(t, "CreateFailed", body.Code)
	assert.NotContains(t, body.Error, "write conflict")
	assert.Empty(t, imageFiles(t, env.imageDir))

	ids, err := env.store.PlaceIDsByOwner(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetPlace(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.createPlace(t, env.alice, "Home")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/places/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeBody[placeEnvelope](t, rec).Place)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/places/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[errorEnvelope](t, rec)
	assert.Equal(t, "NotFound", body.Code)
	assert.Equal(t, "Could not find a place for the provided id.", body.Error)
}

func TestListByOwner(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.createPlace(t, env.alice, "First")
	second := env.createPlace(t, env.alice, "Second")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/places/user/"+env.alice.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Places []domain.PlaceView `json:"places"`
	}](t, rec)
	require.Len(t, body.Places, 2)
	assert.Equal(t, first.ID, body.Places[0].ID)
	assert.Equal(t, second.ID, body.Places[1].ID)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/places/user/"+env.bob.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NoPlacesFound", decodeBody[errorEnvelope](t, rec).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/places/user/nobody", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func patchRequest(id, body, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPatch, "/api/places/"+id, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUpdatePlace(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.createPlace(t, env.alice, "Old title")

	t.Run("owner", func(t *testing.T) {
		rec := env.do(patchRequest(created.ID, `{"title":"New title","description":"Fresh description"}`, env.token(t, env.alice)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		p := decodeBody[placeEnvelope](t, rec).Place
		assert.Equal(t, "New title", p.Title)
		assert.Equal(t, created.Address, p.Address)
	})

	t.Run("stranger", func(t *testing.T) {
		rec := env.do(patchRequest(created.ID, `{"title":"Mine now","description":"Hijacked place"}`, env.token(t, env.bob)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody[errorEnvelope](t, rec)
		assert.Equal(t, "Forbidden", body.Code)
		assert.Equal(t, "You are not allowed to edit this place", body.Error)

		p, err := env.store.GetPlace(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "New title", p.Title)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := env.do(patchRequest(created.ID, `{"title":"x","description":"valid desc","creator":"me"}`, env.token(t, env.alice)))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("short description", func(t *testing.T) {
		rec := env.do(patchRequest(created.ID, `{"title":"x","description":"abc"}`, env.token(t, env.alice)))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing place", func(t *testing.T) {
		rec := env.do(patchRequest("nope", `{"title":"x","description":"valid desc"}`, env.token(t, env.alice)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func deleteRequest(id, token string) *http.Request {
	req := httptest.NewRequest(http.MethodDelete, "/api/places/"+id, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestDeletePlace(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.createPlace(t, env.alice, "Doomed")

	rec := env.do(deleteRequest(created.ID, env.token(t, env.bob)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, imageFiles(t, env.imageDir), 1)

	rec = env.do(deleteRequest(created.ID, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(deleteRequest(created.ID, env.token(t, env.alice)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Deleted place."}`, rec.Body.String())
	assert.Empty(t, imageFiles(t, env.imageDir))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/places/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	u, err := env.store.GetUser(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, u.PlaceIDs)

	rec = env.do(deleteRequest(created.ID, env.token(t, env.alice)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePlace_DetachFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.createPlace(t, env.alice, "Sticky")
	env.store.FailOn(memory.OpDetachPlace, errors.New("write conflict"))

	rec := env.do(deleteRequest(created.ID, env.token(t, env.alice)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "DeleteFailed", decodeBody[errorEnvelope](t, rec).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/places/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, imageFiles(t, env.imageDir), 1)
}

func TestStoreUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.FailOn(memory.OpGetPlace, errors.New("connection refused"))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/places/anything", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[errorEnvelope](t, rec)
	assert.Equal(t, "StoreUnavailable", body.Code)
	assert.NotContains(t, body.Error, "connection refused")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/users", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Could not find this route.", decodeBody[errorEnvelope](t, rec).Error)
}

func TestStatusForKind(t *testing.T) {
	tests := map[place.Kind]int{
		place.KindValidation:           422,
		place.KindAddressNotResolvable: 422,
		place.KindNotFound:             404,
		place.KindNoPlacesFound:        404,
		place.KindOwnerNotFound:        404,
		place.KindForbidden:            401,
		place.KindUpstreamUnavailable:  503,
		place.KindStoreUnavailable:     503,
		place.KindCreateFailed:         500,
		place.KindUpdateFailed:         500,
		place.KindDeleteFailed:         500,
		place.Kind("Unknown"):          500,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusForKind(kind), kind)
	}
}
