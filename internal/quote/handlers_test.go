package quote_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quote-engine/internal/quote"
	"github.com/noah-isme/quote-engine/internal/store"
)

func newRouter(t *testing.T, cfg quote.ServiceConfig) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		quote.NewHandler(newService(t, cfg)).Routes(r)
	})
	return r
}

const createBody = `{
  "product_id": "sauna-s",
  "selections": {"heater": ["cilindro", "stones"], "lighting": "led-2", "bench": "aspen"},
  "customer": {"email": "anna@example.com"}
}`

func TestCreateAndGetQuote(t *testing.T) {
	router := newRouter(t, quote.ServiceConfig{Store: store.NewMemory()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(createBody)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Data quote.Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "q-fixed", created.Data.ID)
	require.Len(t, created.Data.Items, 5)
	require.Equal(t, "2258", created.Data.Subtotal.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quotes/q-fixed", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quotes/unknown", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), `"NOT_FOUND"`)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	st := store.NewMemory()
	router := newRouter(t, quote.ServiceConfig{Store: st})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/quotes/preview", strings.NewReader(createBody)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"state":"generated"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quotes/q-fixed", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateQuoteErrors(t *testing.T) {
	router := newRouter(t, quote.ServiceConfig{Store: failingStore{}})

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"product_id":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"validation", `{"product_id":"sauna-s","selections":[],"customer":{"email":"x"}}`, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"unknown product", `{"product_id":"sauna-xl","selections":{"heater":"cilindro"},"customer":{"email":"a@example.com"}}`, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"persistence", createBody, http.StatusServiceUnavailable, "PERSISTENCE_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			require.Contains(t, rr.Body.String(), `"`+tc.code+`"`)
		})
	}
}

func TestValidationErrorListsFields(t *testing.T) {
	router := newRouter(t, quote.ServiceConfig{})

	rr := httptest.NewRecorder()
	body := `{"product_id":"sauna-s","selections":{"heater":"cilindro"},"customer":{"email":"nope"}}`
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "email", resp.Error.Details["Customer.Email"])
}
