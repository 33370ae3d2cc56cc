// Package assistant turns a customer's free-text message into priced cart
// lines, an intent and a chat reply.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"coffeenet/internal/models"
	"coffeenet/internal/textnorm"
)

// historyOrders is how many of the customer's recent orders feed suggestions.
const historyOrders = 5

var greetings = textnorm.NewSet("oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "hi", "hello")

// Catalog is the read side the interpreter needs.
type Catalog interface {
	Products(ctx context.Context) ([]models.Product, error)
	FavoriteProducts(ctx context.Context, customerID uint, limit int) ([]uint, error)
}

// Interpreter answers chat turns.
type Interpreter struct {
	catalog     Catalog
	parser      Parser
	recommender Recommender
	log         *slog.Logger
}

// NewInterpreter wires the interpreter. Nil parser or recommender select the
// local keyword parser and the template replies.
func NewInterpreter(catalog Catalog, parser Parser, recommender Recommender, log *slog.Logger) *Interpreter {
	if parser == nil {
		parser = KeywordParser{}
	}
	if recommender == nil {
		recommender = TemplateRecommender{}
	}
	return &Interpreter{catalog: catalog, parser: parser, recommender: recommender, log: log}
}

// Interpret handles one message from customerID. Only catalog failures are
// returned as errors; parser and model failures degrade the reply.
func (i *Interpreter) Interpret(ctx context.Context, customerID uint, req models.ChatRequest) (models.ChatReply, error) {
	products, err := i.catalog.Products(ctx)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("load catalog: %w", err)
	}
	byID := make(map[uint]*models.Product, len(products))
	byKeyword := map[string]*models.Product{}
	var keywords []string
	for idx := range products {
		p := &products[idx]
		byID[p.ID] = p
		for _, kw := range p.KeywordList() {
			folded := textnorm.Fold(kw)
			if _, taken := byKeyword[folded]; !taken {
				byKeyword[folded] = p
				keywords = append(keywords, kw)
			}
		}
	}

	// The cart is re-priced; a promotion may have started or ended meanwhile.
	var lines []models.CartLine
	for _, item := range req.CurrentItems {
		if p, ok := byID[item.ProductID]; ok && item.Quantity > 0 {
			lines = addLine(lines, lineFor(p, item.Quantity))
		}
	}

	turn := Turn{Greeting: greetings.Contains(req.Text)}
	text := strings.TrimSpace(req.Text)
	if text != "" && !turn.Greeting {
		guesses, err := i.parser.Parse(ctx, text, keywords)
		if err != nil {
			i.log.Warn("failed to parse chat message", "error", err, "customer_id", customerID)
			guesses = nil
		}
		for _, g := range guesses {
			p, ok := byKeyword[textnorm.Fold(g.Keyword)]
			switch {
			case !ok:
				turn.Unknown = appendUnique(turn.Unknown, g.Keyword)
			case !p.InStock():
				turn.OutOfStock = appendUnique(turn.OutOfStock, p.Name)
			default:
				qty := g.Quantity
				if qty < 1 {
					qty = 1
				}
				lines = addLine(lines, lineFor(p, qty))
			}
		}
	}
	turn.Lines = lines

	switch {
	case turn.Greeting || text == "":
		turn.Intent = models.IntentClarifyGeneral
	case len(lines) > 0:
		turn.Intent = models.IntentConfirm
	case len(turn.OutOfStock) > 0:
		turn.Intent = models.IntentClarifyStock
	case len(turn.Unknown) > 0:
		turn.Intent = models.IntentClarifyProduct
	default:
		turn.Intent = models.IntentClarifyGeneral
	}

	if turn.Intent == models.IntentConfirm {
		turn.Suggested = i.suggest(ctx, customerID, byID, lines)
		if turn.Suggested != nil {
			turn.Intent = models.IntentSuggest
		}
		turn.Promotions = promotions(products, lines)
	}

	recommendation, err := i.recommender.Recommend(ctx, turn)
	if err != nil {
		i.log.Warn("recommender failed, using template", "error", err)
		recommendation, _ = TemplateRecommender{}.Recommend(ctx, turn)
	}

	reply := models.ChatReply{
		Recommendation: recommendation,
		ParsedItems:    lines,
		Intent:         turn.Intent,
		SuggestedItem:  turn.Suggested,
	}
	if reply.ParsedItems == nil {
		reply.ParsedItems = []models.CartLine{}
	}
	return reply, nil
}

// suggest picks the customer's most frequent recent product that is in
// stock and not already in the cart.
func (i *Interpreter) suggest(ctx context.Context, customerID uint, byID map[uint]*models.Product, lines []models.CartLine) *models.CartLine {
	favorites, err := i.catalog.FavoriteProducts(ctx, customerID, historyOrders)
	if err != nil {
		i.log.Warn("failed to load order history", "error", err, "customer_id", customerID)
		return nil
	}
	for _, id := range favorites {
		p, ok := byID[id]
		if !ok || !p.InStock() || inCart(lines, id) {
			continue
		}
		line := lineFor(p, 1)
		return &line
	}
	return nil
}

func promotions(products []models.Product, lines []models.CartLine) []models.Product {
	var out []models.Product
	for _, p := range products {
		if p.OnPromotion && p.PromoPrice.Valid && p.InStock() && !inCart(lines, p.ID) {
			out = append(out, p)
		}
	}
	return out
}

func lineFor(p *models.Product, qty int) models.CartLine {
	return models.CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  qty,
		UnitPrice: p.EffectivePrice(),
		IsPromo:   p.OnPromotion && p.PromoPrice.Valid,
	}
}

func addLine(lines []models.CartLine, line models.CartLine) []models.CartLine {
	for idx := range lines {
		if lines[idx].ProductID == line.ProductID {
			lines[idx].Quantity += line.Quantity
			return lines
		}
	}
	return append(lines, line)
}

func inCart(lines []models.CartLine, productID uint) bool {
	for _, l := range lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
