// Command replay summarizes a trade journal: per-symbol PnL, win rate
// and exit-reason breakdown. A small operator tool, not part of the bot.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"

	"autohedge/internal/modules/journal"

	"github.com/spf13/viper"
)

type symbolStats struct {
	trades  int
	wins    int
	pnl     float64
	reasons map[string]int
}

func main() {
	viper.SetConfigName("replay")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("journal_path", "trades.ndjson")
	viper.SetDefault("symbol", "")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatal(err)
		}
	}
	if len(os.Args) > 1 {
		viper.Set("journal_path", os.Args[1])
	}

	path := viper.GetString("journal_path")
	onlySymbol := viper.GetString("symbol")

	trades, err := journal.ReadAll(path)
	if err != nil {
		log.Fatal(err)
	}
	if len(trades) == 0 {
		fmt.Printf("no trades in %s\n", path)
		return
	}

	stats := make(map[string]*symbolStats)
	total := symbolStats{reasons: make(map[string]int)}
	for _, ct := range trades {
		if onlySymbol != "" && ct.Symbol != onlySymbol {
			continue
		}
		st, ok := stats[ct.Symbol]
		if !ok {
			st = &symbolStats{reasons: make(map[string]int)}
			stats[ct.Symbol] = st
		}
		for _, s := range []*symbolStats{st, &total} {
			s.trades++
			if ct.PnL > 0 {
				s.wins++
			}
			s.pnl += ct.PnL
			s.reasons[ct.Reason]++
		}
	}

	symbols := make([]string, 0, len(stats))
	for sym := range stats {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	fmt.Printf("journal: %s (%d trades)\n\n", path, total.trades)
	for _, sym := range symbols {
		st := stats[sym]
		fmt.Printf("%-12s trades=%-4d win=%5.1f%%  pnl=%+.4f\n",
			sym, st.trades, winRate(st), st.pnl)
	}
	fmt.Printf("\nTOTAL        trades=%-4d win=%5.1f%%  pnl=%+.4f\n", total.trades, winRate(&total), total.pnl)
	fmt.Println("\nexit reasons:")
	for reason, n := range total.reasons {
		fmt.Printf("  %-12s %d\n", reason, n)
	}
}

func winRate(st *symbolStats) float64 {
	if st.trades == 0 {
		return 0
	}
	return 100 * float64(st.wins) / float64(st.trades)
}
