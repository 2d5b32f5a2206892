package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/convoca/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]ClientOption{
		WithBaseURL(server.URL),
		WithRateLimit(1000),
	}, opts...)
	return NewClient(opts...)
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convocatorias/busqueda", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("size"))
		assert.Equal(t, "true", r.URL.Query().Get("abierto"))
		assert.Equal(t, "C", r.URL.Query().Get("finalidad"))
		assert.Equal(t, []string{"PYME", "PERSONA_FISICA"}, r.URL.Query()["tiposBeneficiario"])

		fmt.Fprint(w, `{
			"content": [
				{"numeroConvocatoria": "100", "descripcion": "Ayudas culturales", "nivel1": "Junta"},
				{"numeroConvocatoria": "200", "descripcion": "Ayudas al turismo"}
			],
			"totalElements": 2, "totalPages": 1, "number": 0
		}`)
	}))

	resp, err := client.Search(context.Background(), models.SearchOptions{
		PurposeCode:      "C",
		OnlyOpen:         true,
		BeneficiaryCodes: []string{"PYME", "PERSONA_FISICA"},
	}, 0, 50)
	require.NoError(t, err)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "100", resp.Content[0].ExternalID)
	assert.Equal(t, "Junta", resp.Content[0].Organismo)
	assert.Equal(t, 2, resp.TotalElements)
	// The raw wire payload rides along
	assert.Contains(t, string(resp.Content[0].Extra), "numeroConvocatoria")
}

func TestSearch_MalformedEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"totalElements": 0}`)
	}))

	_, err := client.Search(context.Background(), models.SearchOptions{}, 0, 50)
	assert.Error(t, err)
}

func TestIterate_StopsAtMaxItems(t *testing.T) {
	var pagesServed atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed.Add(1)
		page := r.URL.Query().Get("page")
		if page == "2" {
			fmt.Fprint(w, `{"content": [], "totalElements": 4, "totalPages": 2, "number": 2}`)
			return
		}
		fmt.Fprintf(w, `{
			"content": [
				{"numeroConvocatoria": "%s-a"},
				{"numeroConvocatoria": "%s-b"}
			],
			"totalElements": 4, "totalPages": 2, "number": %s
		}`, page, page, page)
	}))

	iter := client.Iterate(context.Background(), models.SearchOptions{}, 3)

	var ids []string
	for {
		item, err := iter.Next(context.Background())
		require.NoError(t, err)
		if item == nil {
			break
		}
		ids = append(ids, item.ExternalID)
	}

	assert.Equal(t, []string{"0-a", "0-b", "1-a"}, ids)
	assert.LessOrEqual(t, pagesServed.Load(), int32(2))

	// Exhausted iterators stay exhausted
	item, err := iter.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestIterate_StopsAtTotalPages(t *testing.T) {
	var pagesServed atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed.Add(1)
		page := r.URL.Query().Get("page")
		require.Contains(t, []string{"0", "1"}, page, "listing has only two pages")
		fmt.Fprintf(w, `{
			"content": [
				{"numeroConvocatoria": "%s-a"},
				{"numeroConvocatoria": "%s-b"}
			],
			"totalElements": 4, "totalPages": 2, "number": %s
		}`, page, page, page)
	}))

	iter := client.Iterate(context.Background(), models.SearchOptions{}, 0)

	var ids []string
	for {
		item, err := iter.Next(context.Background())
		require.NoError(t, err)
		if item == nil {
			break
		}
		ids = append(ids, item.ExternalID)
	}

	// The envelope's page count ends the walk without a third request
	assert.Equal(t, []string{"0-a", "0-b", "1-a", "1-b"}, ids)
	assert.Equal(t, int32(2), pagesServed.Load())
}

func TestIterate_EmptyListing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": [], "totalElements": 0, "totalPages": 0, "number": 0}`)
	}))

	iter := client.Iterate(context.Background(), models.SearchOptions{}, 0)
	item, err := iter.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDo_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"content": [{"numeroConvocatoria": "100"}], "totalElements": 1, "totalPages": 1, "number": 0}`)
	}))

	resp, err := client.Search(context.Background(), models.SearchOptions{}, 0, 50)
	require.NoError(t, err)
	assert.Len(t, resp.Content, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_RetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"content": [], "totalElements": 0, "totalPages": 0, "number": 0}`)
	}))

	_, err := client.Search(context.Background(), models.SearchOptions{}, 0, 50)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetDetail(context.Background(), "999")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, IsRetryable(err))
}

func TestGetDetail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convocatorias", r.URL.Path)
		assert.Equal(t, "812345", r.URL.Query().Get("numConv"))
		fmt.Fprint(w, `{
			"numeroConvocatoria": "812345",
			"descripcion": "Ayudas culturales",
			"organo": "Ayuntamiento de Sevilla",
			"documentos": [{"id": "9001", "nombreFic": "convocatoria.pdf"}]
		}`)
	}))

	detail, err := client.GetDetail(context.Background(), "812345")
	require.NoError(t, err)
	assert.Equal(t, "812345", detail.ExternalID)
	assert.Equal(t, "Ayuntamiento de Sevilla", detail.Organismo)
	require.Len(t, detail.Documentos, 1)
	assert.Equal(t, "convocatoria.pdf", detail.Documentos[0].Filename)
	assert.NotEmpty(t, detail.Extra)
}

func TestDownloadDocument(t *testing.T) {
	pdfBody := []byte("%PDF-1.7 fake body")

	t.Run("Valid PDF", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/convocatorias/documentos", r.URL.Path)
			assert.Equal(t, "9001", r.URL.Query().Get("idDocumento"))
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(pdfBody)
		}))

		data, err := client.DownloadDocument(context.Background(), "9001")
		require.NoError(t, err)
		assert.Equal(t, pdfBody, data)
	})

	t.Run("HTML error page rejected", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html;charset=UTF-8")
			fmt.Fprint(w, "<html>error</html>")
		}))

		_, err := client.DownloadDocument(context.Background(), "9001")
		assert.ErrorIs(t, err, ErrNotPDF)
		assert.False(t, IsRetryable(err))
	})

	t.Run("Wrong magic bytes rejected", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			fmt.Fprint(w, "not a pdf at all")
		}))

		_, err := client.DownloadDocument(context.Background(), "9001")
		assert.ErrorIs(t, err, ErrNotPDF)
	})

	t.Run("Oversized document rejected", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.7 "))
			w.Write(make([]byte, 2048))
		}), WithMaxPDFBytes(1024))

		_, err := client.DownloadDocument(context.Background(), "9001")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotPDF)
	})
}
