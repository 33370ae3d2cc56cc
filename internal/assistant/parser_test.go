package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coffeenet/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var menuKeywords = []string{
	"café espresso", "espresso", "cafe",
	"cappuccino",
	"latte", "café com leite",
	"pão de queijo", "pao",
	"bolo de fubá", "bolo",
	"suco de laranja", "suco",
}

func TestKeywordParser(t *testing.T) {
	cases := []struct {
		text string
		want []Guess
	}{
		{"quero um latte e dois pão de queijo", []Guess{{"latte", 1}, {"pão de queijo", 2}}},
		{"Meia dúzia de pão de queijo, por favor!", []Guess{{"pão de queijo", 6}}},
		{"uma duzia de pao", []Guess{{"pao", 12}}},
		{"duas dúzias de pão de queijo", []Guess{{"pão de queijo", 24}}},
		{"latte 3", []Guess{{"latte", 3}}},
		{"2 cafés", []Guess{{"cafe", 2}}},
		{"um CAFÉ COM LEITE", []Guess{{"café com leite", 1}}},
		{"cappuccino e latte e cappuccino", []Guess{{"cappuccino", 2}, {"latte", 1}}},
		{"two cappuccinos", []Guess{{"cappuccino", 2}}},
		{"duas pizzas", []Guess{{"pizzas", 2}}},
		{"bom dia", nil},
		{"", nil},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := KeywordParser{}.Parse(context.Background(), tc.text, menuKeywords)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHTTPParserUsesRemoteService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse", r.URL.Path)
		var req nluRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meio latte", req.Text)
		assert.Contains(t, req.Keywords, "latte")
		w.Write([]byte(`{"items":[{"product_guess":"latte","quantity":0.5}]}`))
	}))
	defer srv.Close()

	p := NewHTTPParser(srv.URL+"/", time.Second, KeywordParser{}, logging.Discard())
	got, err := p.Parse(context.Background(), "meio latte", menuKeywords)
	require.NoError(t, err)
	assert.Equal(t, []Guess{{"latte", 1}}, got)
}

func TestHTTPParserFallsBackLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPParser(srv.URL, time.Second, KeywordParser{}, logging.Discard())
	got, err := p.Parse(context.Background(), "dois latte", menuKeywords)
	require.NoError(t, err)
	assert.Equal(t, []Guess{{"latte", 2}}, got)

	p = NewHTTPParser(srv.URL, time.Second, nil, logging.Discard())
	_, err = p.Parse(context.Background(), "dois latte", menuKeywords)
	assert.Error(t, err)
}
