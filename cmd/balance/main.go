package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dantezy/p2p-quoter/internal/balance"
	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/p2p"
)

const (
	version = "0.1.0"
	banner  = `
 ____    _    _        _    _   _  ____ _____
| __ )  / \  | |      / \  | \ | |/ ___| ____|
|  _ \ / _ \ | |     / _ \ |  \| | |   |  _|
| |_) / ___ \| |___ / ___ \| |\  | |___| |___
|____/_/   \_\_____/_/   \_\_| \_|\____|_____|

P2P Balance Checker v%s
Funding balance, in-flight orders and listable quantity per side
`
)

func main() {
	log.SetFlags(log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[balance] ")

	fmt.Printf(banner, version)
	fmt.Println(strings.Repeat("-", 60))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	client := p2p.NewClient(cfg.APIKey, cfg.APISecret, cfg.Testnet).
		WithMarket(cfg.P2P.Token, cfg.P2P.Currency).
		WithAccount(cfg.MyUID)
	calc := balance.NewCalculator(cfg.P2P.Token, cfg.P2P.TotalCapital(), cfg.P2P.TerminalStatuses, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	custodial, err := client.Balance(ctx, cfg.P2P.Token)
	if err != nil {
		log.Fatalf("failed to fetch balance: %v", err)
	}

	log.Printf("funding %s:   %s", cfg.P2P.Token, custodial)
	log.Printf("capital total:  %.2f", cfg.P2P.Total)
	fmt.Println(strings.Repeat("-", 60))

	for _, side := range p2p.Sides {
		pending, err := client.PendingOrders(ctx, side)
		if err != nil {
			log.Printf("failed to fetch %s pending orders: %v", side, err)
			continue
		}

		fmt.Printf("%s pending orders: %d\n", side, len(pending))
		for _, o := range pending {
			state := "in flight"
			if calc.IsTerminal(o.StatusCode()) {
				state = "terminal"
			}
			fmt.Printf("  %-22s status %-3d %-10s qty %-12s price %-10s %s\n",
				o.ID, o.StatusCode(), state, o.Volume(), o.Price, o.Counterparty())
		}

		var reserve []p2p.Order
		if side == p2p.SideBuy {
			reserve = pending
		}
		fmt.Printf("  reserved:   %s\n", calc.Reserved(reserve))
		fmt.Printf("  listable:   %s\n", calc.Available(side, custodial, reserve))
		fmt.Println()
	}
}
