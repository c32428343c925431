package rewrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRewriteParsesWellFormedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(Rewrite{
			Keywords:       "widget teardown",
			SemanticIntent: "how widgets are torn down",
			Filters:        Filters{Extensions: []string{".go"}},
		})
		resp, _ := json.Marshal(generateResponse{Response: string(payload), Done: true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	r := New(Config{Host: srv.URL}, nil)
	rw := r.Rewrite(context.Background(), "how do widgets get torn down", time.Second)

	assert.Equal(t, "widget teardown", rw.Keywords)
	assert.Equal(t, "how widgets are torn down", rw.SemanticIntent)
	assert.Equal(t, []string{".go"}, rw.Filters.Extensions)
}

func TestRewriteFallsBackOnTransportError(t *testing.T) {
	r := New(Config{Host: "http://127.0.0.1:1"}, nil)
	rw := r.Rewrite(context.Background(), "find the parser", 200*time.Millisecond)

	assert.Equal(t, "find the parser", rw.Keywords)
	assert.Equal(t, "find the parser", rw.SemanticIntent)
	assert.Empty(t, rw.Filters.Extensions)
	assert.Nil(t, rw.Filters.FolderName)
}

func TestRewriteFallsBackOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(Config{Host: srv.URL}, nil)
	rw := r.Rewrite(context.Background(), "find the parser", 20*time.Millisecond)

	assert.Equal(t, "find the parser", rw.Keywords)
}

func TestRewriteFallsBackOnMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, _ := json.Marshal(generateResponse{Response: "not json", Done: true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	r := New(Config{Host: srv.URL}, nil)
	rw := r.Rewrite(context.Background(), "find the parser", time.Second)

	assert.Equal(t, "find the parser", rw.Keywords)
}

func TestRewriteFallsBackOnSchemaMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := `{"unexpected": "shape"}`
		resp, _ := json.Marshal(generateResponse{Response: payload, Done: true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	r := New(Config{Host: srv.URL}, nil)
	rw := r.Rewrite(context.Background(), "find the parser", time.Second)

	assert.Equal(t, "find the parser", rw.Keywords)
}
