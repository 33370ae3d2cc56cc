package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"coffeenet/internal/textnorm"
)

// Guess is one item the parser believes the customer asked for. Keyword is
// either one of the catalog keywords or, when nothing matched, the word the
// customer used.
type Guess struct {
	Keyword  string `json:"product_guess"`
	Quantity int    `json:"quantity"`
}

// Parser extracts item guesses from an utterance.
type Parser interface {
	Parse(ctx context.Context, text string, keywords []string) ([]Guess, error)
}

var numberWords = map[string]int{
	"um": 1, "uma": 1, "dois": 2, "duas": 2, "tres": 3, "quatro": 4, "cinco": 5,
	"seis": 6, "sete": 7, "oito": 8, "nove": 9, "dez": 10, "onze": 11, "doze": 12,
	"treze": 13, "catorze": 14, "quatorze": 14, "quinze": 15,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "twelve": 12,
}

var dozenWords = map[string]bool{"duzia": true, "duzias": true, "dozen": true, "dozens": true}

// fillers may sit between a quantity and the product ("duas de pão de queijo").
var fillers = map[string]bool{"de": true, "of": true}

type token struct {
	text string
	num  int
}

func tokenize(text string) []token {
	folded := " " + textnorm.Fold(text) + " "
	folded = strings.ReplaceAll(folded, " meia duzia ", " 6 ")
	folded = strings.ReplaceAll(folded, " half a dozen ", " 6 ")

	var out []token
	for _, w := range strings.Fields(folded) {
		if dozenWords[w] {
			if n := len(out); n > 0 && out[n-1].num > 0 {
				out[n-1].num *= 12
				continue
			}
			out = append(out, token{text: w, num: 12})
			continue
		}
		if n, ok := numberWords[w]; ok {
			out = append(out, token{text: w, num: n})
			continue
		}
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			out = append(out, token{text: w, num: n})
			continue
		}
		out = append(out, token{text: w})
	}
	return out
}

type phrase struct {
	keyword string
	words   []string
}

// KeywordParser matches catalog keywords in the folded text, longest phrase
// first, and reads the quantity written before or after each match. A
// trailing "s" on a word still matches.
type KeywordParser struct{}

func (KeywordParser) Parse(ctx context.Context, text string, keywords []string) ([]Guess, error) {
	phrases := make([]phrase, 0, len(keywords))
	for _, kw := range keywords {
		if words := strings.Fields(textnorm.Fold(kw)); len(words) > 0 {
			phrases = append(phrases, phrase{keyword: kw, words: words})
		}
	}
	sort.SliceStable(phrases, func(i, j int) bool { return len(phrases[i].words) > len(phrases[j].words) })

	toks := tokenize(text)
	used := make([]bool, len(toks))
	matchAt := func(i int) (phrase, bool) {
		for _, p := range phrases {
			if i+len(p.words) > len(toks) {
				continue
			}
			ok := true
			for k, w := range p.words {
				if t := toks[i+k].text; t != w && t != w+"s" {
					ok = false
					break
				}
			}
			if ok {
				return p, true
			}
		}
		return phrase{}, false
	}
	// quantityBefore finds an unused number right before i, allowing one filler.
	quantityBefore := func(i int) int {
		j := i - 1
		if j >= 0 && fillers[toks[j].text] {
			j--
		}
		if j >= 0 && toks[j].num > 0 && !used[j] {
			used[j] = true
			return toks[j].num
		}
		return 0
	}

	var guesses []Guess
	index := map[string]int{}
	add := func(keyword string, qty int) {
		if i, ok := index[keyword]; ok {
			guesses[i].Quantity += qty
			return
		}
		index[keyword] = len(guesses)
		guesses = append(guesses, Guess{Keyword: keyword, Quantity: qty})
	}

	for i := 0; i < len(toks); {
		if p, ok := matchAt(i); ok {
			end := i + len(p.words)
			for k := i; k < end; k++ {
				used[k] = true
			}
			qty := quantityBefore(i)
			if qty == 0 && end < len(toks) && toks[end].num > 0 {
				if _, next := matchAt(end + 1); !next {
					qty = toks[end].num
					used[end] = true
					end++
				}
			}
			if qty == 0 {
				qty = 1
			}
			add(p.keyword, qty)
			i = end
			continue
		}

		// A quantity followed by a word that is not on the menu.
		if toks[i].num > 0 && !used[i] {
			j := i + 1
			if j < len(toks) && fillers[toks[j].text] {
				j++
			}
			if j < len(toks) && toks[j].num == 0 {
				if _, ok := matchAt(j); !ok {
					used[i], used[j] = true, true
					add(toks[j].text, toks[i].num)
					i = j + 1
					continue
				}
			}
		}
		i++
	}
	return guesses, nil
}

// HTTPParser calls a remote NLU service at {url}/parse and falls back to a
// local parser when the call fails.
type HTTPParser struct {
	url        string
	httpClient *http.Client
	fallback   Parser
	log        *slog.Logger
}

// NewHTTPParser creates a remote parser. fallback may be nil.
func NewHTTPParser(url string, timeout time.Duration, fallback Parser, log *slog.Logger) *HTTPParser {
	return &HTTPParser{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
		fallback:   fallback,
		log:        log,
	}
}

type nluRequest struct {
	Text     string   `json:"text"`
	Keywords []string `json:"product_keywords"`
}

type nluResponse struct {
	Items []struct {
		Guess    string  `json:"product_guess"`
		Quantity float64 `json:"quantity"`
	} `json:"items"`
}

func (p *HTTPParser) Parse(ctx context.Context, text string, keywords []string) ([]Guess, error) {
	guesses, err := p.remote(ctx, text, keywords)
	if err == nil {
		return guesses, nil
	}
	if p.fallback == nil {
		return nil, err
	}
	p.log.Warn("nlu service failed, parsing locally", "error", err)
	return p.fallback.Parse(ctx, text, keywords)
}

func (p *HTTPParser) remote(ctx context.Context, text string, keywords []string) ([]Guess, error) {
	body, err := json.Marshal(nluRequest{Text: text, Keywords: keywords})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/parse", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call nlu service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nlu service returned status %d", resp.StatusCode)
	}

	var decoded nluResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode nlu response: %w", err)
	}
	guesses := make([]Guess, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		// Fractional quantities ("meia") round up to whole units.
		qty := int(math.Ceil(item.Quantity))
		if qty < 1 {
			qty = 1
		}
		guesses = append(guesses, Guess{Keyword: item.Guess, Quantity: qty})
	}
	return guesses, nil
}
