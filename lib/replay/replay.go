// Package replay executes a scripted sequence of pool operations from a
// JSON file, for reproducing scenarios and backtesting against recorded
// activity.
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fluxline/clpool/lib/bank"
	cons "github.com/fluxline/clpool/lib/constants"
	"github.com/fluxline/clpool/lib/factory"
	"github.com/fluxline/clpool/lib/router"

	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

const (
	OpCredit     = "credit"
	OpCreate     = "create"
	OpInitialize = "initialize"
	OpMint       = "mint"
	OpBurn       = "burn"
	OpCollect    = "collect"
	OpSwap       = "swap"
)

// Input is one scripted operation as it appears in the file. Numeric
// fields are decimal strings; Amount on a swap is signed, negative for
// exact output.
type Input struct {
	Op           string `json:"op"`
	Account      string `json:"account,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	TokenA       string `json:"tokenA,omitempty"`
	TokenB       string `json:"tokenB,omitempty"`
	Token        string `json:"token,omitempty"`
	Fee          int    `json:"fee,omitempty"`
	SqrtPriceX96 string `json:"sqrtPriceX96,omitempty"`
	TickLower    int    `json:"tickLower,omitempty"`
	TickUpper    int    `json:"tickUpper,omitempty"`
	Amount       string `json:"amount,omitempty"`
	PriceLimit   string `json:"priceLimit,omitempty"`
}

// Transaction is a parsed Input.
type Transaction struct {
	Op           string
	Account      string
	Recipient    string
	TokenA       string
	TokenB       string
	Token        string
	Fee          int
	SqrtPriceX96 *ui.Int
	TickLower    int
	TickUpper    int
	Amount       *ui.Int // signed for swaps
	PriceLimit   *ui.Int
}

// Result is what one applied operation settled to. Liquidity operations
// report pool-ordered amounts; swaps report the input and output legs.
type Result struct {
	Op        string `json:"op"`
	Pool      string `json:"pool,omitempty"`
	Amount0   string `json:"amount0,omitempty"`
	Amount1   string `json:"amount1,omitempty"`
	AmountIn  string `json:"amountIn,omitempty"`
	AmountOut string `json:"amountOut,omitempty"`
}

// Load reads a script: a JSON array of operations.
func Load(path string) ([]Transaction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var inputs []Input
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}

	txs := make([]Transaction, 0, len(inputs))
	for i, in := range inputs {
		tx, err := parse(in)
		if err != nil {
			return nil, fmt.Errorf("script entry %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parse(in Input) (Transaction, error) {
	tx := Transaction{
		Op:        in.Op,
		Account:   in.Account,
		Recipient: in.Recipient,
		TokenA:    in.TokenA,
		TokenB:    in.TokenB,
		Token:     in.Token,
		Fee:       in.Fee,
		TickLower: in.TickLower,
		TickUpper: in.TickUpper,
	}
	var err error
	if tx.Amount, err = parseSigned(in.Amount); err != nil {
		return Transaction{}, fmt.Errorf("amount: %w", err)
	}
	if tx.SqrtPriceX96, err = parseUnsigned(in.SqrtPriceX96); err != nil {
		return Transaction{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	if tx.PriceLimit, err = parseUnsigned(in.PriceLimit); err != nil {
		return Transaction{}, fmt.Errorf("priceLimit: %w", err)
	}
	return tx, nil
}

func parseUnsigned(s string) (*ui.Int, error) {
	if s == "" {
		return new(ui.Int), nil
	}
	return ui.FromDecimal(s)
}

func parseSigned(s string) (*ui.Int, error) {
	if s == "" {
		return new(ui.Int), nil
	}
	neg := strings.HasPrefix(s, "-")
	x, err := ui.FromDecimal(strings.TrimPrefix(s, "-"))
	if err != nil {
		return nil, err
	}
	if neg {
		x.Neg(x)
	}
	return x, nil
}

// Runner applies transactions against a factory-backed market, settling
// through the bank.
type Runner struct {
	factory *factory.Factory
	router  *router.Router
	bank    *bank.Bank
	log     *zap.Logger
}

func NewRunner(f *factory.Factory, b *bank.Bank, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		factory: f,
		router:  router.New(f),
		bank:    b,
		log:     logger,
	}
}

// Run applies the whole script in order and stops at the first failure.
func (r *Runner) Run(txs []Transaction) ([]Result, error) {
	results := make([]Result, 0, len(txs))
	for i, tx := range txs {
		res, err := r.Apply(tx)
		if err != nil {
			return results, fmt.Errorf("transaction %d (%s): %w", i, tx.Op, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Apply executes a single transaction.
func (r *Runner) Apply(tx Transaction) (Result, error) {
	switch tx.Op {
	case OpCredit:
		r.bank.Credit(tx.Account, tx.Token, tx.Amount)
		return Result{Op: tx.Op}, nil

	case OpCreate:
		p, err := r.factory.Create(tx.TokenA, tx.TokenB, tx.Fee)
		if err != nil {
			return Result{}, err
		}
		return Result{Op: tx.Op, Pool: p.ID()}, nil

	case OpInitialize:
		p, err := r.factory.Get(tx.TokenA, tx.TokenB, tx.Fee)
		if err != nil {
			return Result{}, err
		}
		if err := p.Initialize(tx.SqrtPriceX96); err != nil {
			return Result{}, err
		}
		return Result{Op: tx.Op, Pool: p.ID()}, nil

	case OpMint:
		p, err := r.factory.Get(tx.TokenA, tx.TokenB, tx.Fee)
		if err != nil {
			return Result{}, err
		}
		a0, a1, err := p.Mint(tx.Account, tx.TickLower, tx.TickUpper, tx.Amount, nil, r.payer(tx.Account, p))
		if err != nil {
			return Result{}, err
		}
		return Result{Op: tx.Op, Pool: p.ID(), Amount0: a0.ToBig().String(), Amount1: a1.ToBig().String()}, nil

	case OpBurn:
		p, err := r.factory.Get(tx.TokenA, tx.TokenB, tx.Fee)
		if err != nil {
			return Result{}, err
		}
		a0, a1, err := p.Burn(tx.Account, tx.TickLower, tx.TickUpper, tx.Amount)
		if err != nil {
			return Result{}, err
		}
		return Result{Op: tx.Op, Pool: p.ID(), Amount0: a0.ToBig().String(), Amount1: a1.ToBig().String()}, nil

	case OpCollect:
		p, err := r.factory.Get(tx.TokenA, tx.TokenB, tx.Fee)
		if err != nil {
			return Result{}, err
		}
		recipient := tx.Recipient
		if recipient == "" {
			recipient = tx.Account
		}
		a0, a1, err := p.Collect(tx.Account, tx.TickLower, tx.TickUpper, recipient, cons.MaxUint128, cons.MaxUint128)
		if err != nil {
			return Result{}, err
		}
		return Result{Op: tx.Op, Pool: p.ID(), Amount0: a0.ToBig().String(), Amount1: a1.ToBig().String()}, nil

	case OpSwap:
		p, err := r.factory.Get(tx.TokenA, tx.TokenB, tx.Fee)
		if err != nil {
			return Result{}, err
		}
		recipient := tx.Recipient
		if recipient == "" {
			recipient = tx.Account
		}
		var limit *ui.Int
		if !tx.PriceLimit.IsZero() {
			limit = tx.PriceLimit
		}
		pay := r.payer(tx.Account, p)
		// TokenA is the side being sold; the amount's sign picks exact
		// input or exact output of the other side.
		if tx.Amount.Sign() >= 0 {
			out, err := r.router.SwapExactInput(recipient, tx.TokenA, tx.TokenB, tx.Fee, tx.Amount, limit, nil, pay)
			if err != nil {
				return Result{}, err
			}
			return Result{Op: tx.Op, Pool: p.ID(), AmountIn: tx.Amount.ToBig().String(), AmountOut: out.ToBig().String()}, nil
		}
		want := new(ui.Int).Neg(tx.Amount)
		in, err := r.router.SwapExactOutput(recipient, tx.TokenA, tx.TokenB, tx.Fee, want, limit, nil, pay)
		if err != nil {
			return Result{}, err
		}
		return Result{Op: tx.Op, Pool: p.ID(), AmountIn: in.ToBig().String(), AmountOut: want.ToBig().String()}, nil

	default:
		return Result{}, fmt.Errorf("unknown op %q", tx.Op)
	}
}

func (r *Runner) payer(account string, p poolAccounts) func(*ui.Int, *ui.Int, []byte) error {
	return r.bank.Payer(account, p.ID(), p.Token0(), p.Token1())
}

type poolAccounts interface {
	ID() string
	Token0() string
	Token1() string
}
