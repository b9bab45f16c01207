package game

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string       `json:"denom"`
	Amount *uint256.Int `json:"amount"`
}

func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: uint256.NewInt(amount)}
}

func (c Coin) String() string {
	if c.Amount == nil {
		return "0" + c.Denom
	}
	return c.Amount.Dec() + c.Denom
}

// IsZero reports whether the coin carries no value.
func (c Coin) IsZero() bool {
	return c.Amount == nil || c.Amount.IsZero()
}

// AmountOf sums every coin of denom in funds.
func AmountOf(funds []Coin, denom string) *uint256.Int {
	total := new(uint256.Int)
	for _, c := range funds {
		if c.Denom == denom && c.Amount != nil {
			total.Add(total, c.Amount)
		}
	}
	return total
}

// Transfer is an outbound fund-transfer instruction. The game only emits
// transfers; the ledger settles them.
type Transfer struct {
	ID     uuid.UUID `json:"id"`
	To     string    `json:"to"`
	Amount Coin      `json:"amount"`
}

func NewTransfer(to string, amount Coin) Transfer {
	return Transfer{ID: uuid.New(), To: to, Amount: amount}
}

// checkPayment succeeds when any single sent coin matches the required denom
// with at least the required amount. A zero requirement always passes.
func checkPayment(sent []Coin, required Coin) error {
	if required.IsZero() {
		return nil
	}
	for _, c := range sent {
		if c.Denom == required.Denom && c.Amount != nil && !c.Amount.Lt(required.Amount) {
			return nil
		}
	}
	return &InsufficientFundsError{Required: required}
}
