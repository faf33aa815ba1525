package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/logging"
	"github.com/dantezy/p2p-quoter/internal/p2p"
	"github.com/dantezy/p2p-quoter/internal/pricing"
	"github.com/dantezy/p2p-quoter/internal/rules"
)

const (
	version = "0.1.0"
	banner  = `
 ____   ____    _    _   _ _   _ _____ ____
/ ___| / ___|  / \  | \ | | \ | | ____|  _ \
\___ \| |     / _ \ |  \| |  \| |  _| | |_) |
 ___) | |___ / ___ \| |\  | |\  | |___|  _ <
|____/ \____/_/   \_\_| \_|_| \_|_____|_| \_\

P2P Market Scanner v%s
Shows which competitor listings pass the rules and the price that would be quoted
`
)

func main() {
	log.SetFlags(log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[scanner] ")

	fmt.Printf(banner, version)
	fmt.Println(strings.Repeat("-", 100))

	cfg, err := config.LoadMinimal()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.NewConsole("warn")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	client := p2p.NewClient(cfg.APIKey, cfg.APISecret, cfg.Testnet).
		WithMarket(cfg.P2P.Token, cfg.P2P.Currency).
		WithAccount(cfg.MyUID).
		WithPaging(cfg.P2P.PageSize, cfg.P2P.MaxPages)

	engine := rules.NewEngine(logger)
	resolver := pricing.NewResolver(engine, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var buyQuote decimal.Decimal
	for _, side := range p2p.Sides {
		sideCfg := cfg.Side(side)
		if side == p2p.SideSell {
			sideCfg = sideCfg.WithReference(buyQuote)
		}

		log.Printf("fetching %s listings for %s/%s...", side, cfg.P2P.Token, cfg.P2P.Currency)
		listings, err := client.MarketListings(ctx, side)
		if err != nil {
			log.Printf("failed to fetch %s listings: %v", side, err)
			continue
		}

		fmt.Println()
		printHeader(side)
		for _, l := range listings {
			printListing(l, engine.Evaluate(l, sideCfg))
		}

		res := resolver.Resolve(listings, sideCfg, side)
		quote := res.Quote(side, cfg.P2P.Step(), cfg.P2P.PriceDecimals)
		if side == p2p.SideBuy {
			buyQuote = quote
		}

		fmt.Println()
		log.Printf("%s: %d listing(s), %d eligible", side, len(listings), res.Eligible)
		log.Printf("%s: resolved %s via %s, quote %s", side, res.Price, res.Strategy, quote)
		if res.Candidate != nil {
			log.Printf("%s: candidate %s at %s", side, res.Candidate.NickName, res.Candidate.Price)
		}
		if res.Neighbor != nil {
			log.Printf("%s: neighbor %s at %s", side, res.Neighbor.NickName, res.Neighbor.Price)
		}
	}
}

func printHeader(side p2p.Side) {
	fmt.Printf("%s listings\n", side)
	fmt.Printf("%-20s | %-10s | %-12s | %-21s | %-7s | %s\n",
		"Nickname", "Price", "Available", "Limits", "Orders", "Verdict")
	fmt.Println(strings.Repeat("-", 100))
}

func printListing(l p2p.Listing, v rules.Verdict) {
	verdict := "eligible"
	if !v.Eligible {
		verdict = fmt.Sprintf("rejected: %s (%s, want %s)", v.Rule, v.Observed, v.Threshold)
	}

	fmt.Printf("%-20s | %-10s | %-12s | %-21s | %-7s | %s\n",
		truncate(l.NickName, 20),
		l.Price.String(),
		l.LastQuantity.String(),
		l.MinAmount.String()+"-"+l.MaxAmount.String(),
		l.RecentOrderNum.String(),
		verdict,
	)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
