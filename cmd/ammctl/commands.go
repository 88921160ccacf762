package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/balance"
	"github.com/aman-zulfiqar/solana-amm-client/internal/flags"
	"github.com/aman-zulfiqar/solana-amm-client/internal/quote"
	"github.com/aman-zulfiqar/solana-amm-client/internal/swapengine"
	"github.com/aman-zulfiqar/solana-amm-client/internal/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

// tokenResolver is the part of the engine used to name tokens on the command line.
type tokenResolver interface {
	Token(mint solana.PublicKey) (balance.Token, bool)
	TokenBySymbol(symbol string) (balance.Token, bool)
}

// resolveToken accepts a configured symbol (any case) or a mint address.
func resolveToken(r tokenResolver, s string) (balance.Token, error) {
	s = strings.TrimSpace(s)
	if t, ok := r.TokenBySymbol(strings.ToUpper(s)); ok {
		return t, nil
	}
	mint, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return balance.Token{}, fmt.Errorf("unknown token %q", s)
	}
	if t, ok := r.Token(mint); ok {
		return t, nil
	}
	// unconfigured mints trade in base units
	return balance.Token{Name: mint.String()[:8], Mint: mint}, nil
}

func parseIntent(r tokenResolver, from, to, amount string, raw bool) (swapengine.SwapIntent, balance.Token, balance.Token, error) {
	src, err := resolveToken(r, from)
	if err != nil {
		return swapengine.SwapIntent{}, src, balance.Token{}, err
	}
	dst, err := resolveToken(r, to)
	if err != nil {
		return swapengine.SwapIntent{}, src, dst, err
	}
	intent := swapengine.SwapIntent{FromMint: src.Mint, ToMint: dst.Mint}
	if raw {
		intent.AmountIn, err = strconv.ParseUint(strings.TrimSpace(amount), 10, 64)
		if err != nil {
			return intent, src, dst, fmt.Errorf("invalid raw amount %q: %w", amount, err)
		}
	} else {
		intent.AmountIn, err = swapengine.ParseAmount(amount, src.Decimals)
		if err != nil {
			return intent, src, dst, err
		}
	}
	return intent, src, dst, swapengine.ValidateIntent(intent)
}

func printQuote(w io.Writer, q quote.Quote, src, dst balance.Token) {
	fmt.Fprintf(w, "pool:         %s\n", q.Pool.Address)
	fmt.Fprintf(w, "in:           %s %s\n", amm.UIAmount(q.AmountIn, src.Decimals), src.Name)
	fmt.Fprintf(w, "out:          %s %s\n", amm.UIAmount(q.AmountOut, dst.Decimals), dst.Name)
	if !q.IsZero() {
		fmt.Fprintf(w, "price:        %s %s/%s\n", q.EffectivePrice(src.Decimals, dst.Decimals), dst.Name, src.Name)
		fmt.Fprintf(w, "price impact: %.4f%%\n", q.PriceImpact()*100)
	}
}

func cmdPools(a *app) *cobra.Command {
	var tradable, rescan bool
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List pools owned by the AMM program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				pools []amm.Pool
				err   error
			)
			switch {
			case rescan:
				pools, err = a.engine.RescanPools(ctx)
			case tradable:
				pools, err = a.engine.TradablePools(ctx)
			default:
				pools, err = a.engine.Pools(ctx)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "POOL\tMINT A\tMINT B")
			for _, p := range pools {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Address, a.tokenName(p.MintA), a.tokenName(p.MintB))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&tradable, "tradable", false, "only pools against the base token")
	cmd.Flags().BoolVar(&rescan, "rescan", false, "force a fresh discovery scan")
	return cmd
}

func (a *app) tokenName(mint solana.PublicKey) string {
	if t, ok := a.engine.Token(mint); ok {
		return t.Name
	}
	return mint.String()
}

func cmdQuote(a *app) *cobra.Command {
	var raw, interactive bool
	cmd := &cobra.Command{
		Use:   "quote FROM TO [AMOUNT]",
		Short: "Price a swap against live reserves",
		Long: `Price a swap against live reserves.

With --interactive, amounts are read from stdin one per line and quoted
after typing pauses; only the latest amount is priced.

Example:
  $ ammctl quote SOL FIRE 0.5
  $ ammctl quote SOL FIRE --interactive`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return a.interactiveQuote(cmd, args[0], args[1], raw)
			}
			if len(args) != 3 {
				return errors.New("AMOUNT is required without --interactive")
			}
			intent, src, dst, err := parseIntent(a.engine, args[0], args[1], args[2], raw)
			if err != nil {
				return err
			}
			q, err := a.engine.GetQuote(cmd.Context(), intent)
			if err != nil {
				return err
			}
			printQuote(cmd.OutOrStdout(), q, src, dst)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "amount is in base units")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read amounts from stdin")
	return cmd
}

func (a *app) interactiveQuote(cmd *cobra.Command, from, to string, raw bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	src, err := resolveToken(a.engine, from)
	if err != nil {
		return err
	}
	dst, err := resolveToken(a.engine, to)
	if err != nil {
		return err
	}

	d := a.engine.NewQuoteDebouncer(func(r quote.Result) {
		if r.Err != nil {
			fmt.Fprintf(out, "quote failed: %v\n", r.Err)
			return
		}
		fmt.Fprintf(out, "%s %s -> %s %s\n",
			amm.UIAmount(r.AmountIn, src.Decimals), src.Name,
			amm.UIAmount(r.Quote.AmountOut, dst.Decimals), dst.Name)
	})
	defer d.Stop()

	var lastGen uint64
	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		intent, _, _, err := parseIntent(a.engine, from, to, line, raw)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		lastGen = d.Request(ctx, intent.Pair(), intent.AmountIn)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if lastGen == 0 {
		return nil
	}

	// let the last request land before exiting
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	for {
		if r, ok := d.Latest(); ok && r.Generation == lastGen {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func cmdBalances(a *app) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "balances HOLDER [TOKEN...]",
		Short: "Show token balances of a holder",
		Long:  "Show token balances of a holder. Tokens given by symbol or mint replace the configured tracked tokens; the base token is always shown.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holder, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid holder: %w", err)
			}
			tokens := make([]balance.Token, 0, len(args)-1)
			for _, arg := range args[1:] {
				t, err := resolveToken(a.engine, arg)
				if err != nil {
					return err
				}
				tokens = append(tokens, t)
			}
			ctx := cmd.Context()
			bals, err := a.engine.GetBalances(ctx, holder, tokens...)
			if err != nil {
				return err
			}
			a.printBalances(cmd.OutOrStdout(), bals)
			if !follow {
				return nil
			}
			return a.followBalances(ctx, cmd.OutOrStdout(), holder)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing as balances change")
	return cmd
}

func (a *app) printBalances(w io.Writer, bals balance.Balances) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range balanceOrder(a.engine.Tokens(), bals) {
		e := bals[name]
		fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.UIAmount())
	}
	_ = tw.Flush()
}

// balanceOrder lists configured tokens in configuration order, then any
// others by name.
func balanceOrder(configured []balance.Token, bals balance.Balances) []string {
	names := make([]string, 0, len(bals))
	seen := make(map[string]bool, len(bals))
	for _, t := range configured {
		if _, ok := bals[t.Name]; ok && !seen[t.Name] {
			names = append(names, t.Name)
			seen[t.Name] = true
		}
	}
	var rest []string
	for name := range bals {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// followBalances runs the engine's background loops and prints every new snapshot.
func (a *app) followBalances(ctx context.Context, w io.Writer, holder solana.PublicKey) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.engine.Run(ctx) }()

	_, last, _ := a.engine.CachedBalances(holder)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return <-done
		case err := <-done:
			return err
		case <-ticker.C:
			bals, at, ok := a.engine.CachedBalances(holder)
			if !ok || !at.After(last) {
				continue
			}
			last = at
			fmt.Fprintf(w, "-- %s\n", at.Format(time.TimeOnly))
			a.printBalances(w, bals)
		}
	}
}

func cmdSwap(a *app) *cobra.Command {
	var raw, yes bool
	cmd := &cobra.Command{
		Use:   "swap FROM TO AMOUNT",
		Short: "Swap with the keypair in WALLET_PRIVATE_KEY",
		Long: `Quote, sign and submit a swap, then wait for the ledger to settle it.

Example:
  $ ammctl swap SOL FIRE 0.25
  $ ammctl swap FIRE SOL 1500000 --raw --yes`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			signer, err := wallet.NewKeypairSignerFromEnv()
			if err != nil {
				return err
			}
			intent, src, dst, err := parseIntent(a.engine, args[0], args[1], args[2], raw)
			if err != nil {
				return err
			}

			q, err := a.engine.GetQuote(ctx, intent)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "wallet:       %s\n", signer.Address())
			printQuote(out, q, src, dst)

			if !yes && !confirm(cmd.InOrStdin(), out) {
				return errors.New("aborted")
			}

			res, err := a.engine.ExecuteSwap(ctx, signer, intent)
			if res != nil {
				fmt.Fprintf(out, "status:       %s\n", res.Status)
				fmt.Fprintf(out, "signature:    %s\n", res.Signature)
				fmt.Fprintf(out, "min out:      %s %s\n", amm.UIAmount(res.MinAmountOut, dst.Decimals), dst.Name)
				if res.Reason != "" {
					fmt.Fprintf(out, "reason:       %s\n", res.Reason)
				}
				fmt.Fprintf(out, "took:         %s\n", res.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "amount is in base units")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "proceed? [y/N] ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func cmdRecent(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent HOLDER",
		Short: "List journaled swaps of a holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holder, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid holder: %w", err)
			}
			items, err := a.engine.RecentSwaps(cmd.Context(), holder, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATUS\tFROM\tTO\tAMOUNT IN\tSIGNATURE")
			for _, r := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.Timestamp.Format(time.DateTime), r.Status, r.FromMint, r.ToMint, r.AmountIn, r.Signature)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}

func cmdHalt(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "halt REASON...",
		Short: "Stop all swap submissions until resumed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.engine.HaltTrading(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trading halted: %s\n", f.Reason)
			return nil
		},
	}
}

func cmdResume(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Allow swap submissions again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.engine.ResumeTrading(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "trading resumed")
			return nil
		},
	}
}

func cmdFlags(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "List operator flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.engine.Flags(cmd.Context())
			if err != nil {
				return err
			}
			printFlags(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete KEY",
		Short: "Remove an operator flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.ValidateKey(args[0]); err != nil {
				return err
			}
			if err := a.engine.DeleteFlag(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func printFlags(w io.Writer, list []*flags.Flag) {
	slices.SortFunc(list, func(a, b *flags.Flag) int { return strings.Compare(a.Key, b.Key) })
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tUPDATED\tREASON")
	for _, f := range list {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", f.Key, f.Value, f.UpdatedAt.Format(time.RFC3339), f.Reason)
	}
	_ = tw.Flush()
}
