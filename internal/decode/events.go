package decode

// Event is the closed set of decoded program events.
type Event interface {
	event()
}

// ProposalLaunched signals a new futarchy proposal on the autocrat program.
type ProposalLaunched struct {
	Proposal   string // Proposal PDA
	ProposalID uint64 // On-chain numeric id
	NumOptions int    // Number of outcome markets
	CreatedAt  int64  // Unix seconds
}

// ProposalFinalized signals that a proposal has been resolved.
type ProposalFinalized struct {
	Proposal     string // Proposal PDA
	WinningIndex int    // Winning option index
}

// ConditionalSwap signals a trade on a conditional AMM pool.
type ConditionalSwap struct {
	Pool      string // Conditional pool PDA
	Trader    string // Trader account
	Direction string // "buy" or "sell"
	AmountIn  uint64 // Input amount (raw units)
	AmountOut uint64 // Output amount (raw units)
	Fee       uint64 // Fee amount (raw units)
}

func (ProposalLaunched) event()  {}
func (ProposalFinalized) event() {}
func (ConditionalSwap) event()   {}

// Event discriminators: the first 8 payload bytes identify the event.
var (
	discProposalLaunched  = [8]byte{0xd1, 0x5e, 0x23, 0x9a, 0x41, 0x0c, 0x77, 0xb2}
	discProposalFinalized = [8]byte{0x6b, 0xf4, 0x09, 0xc5, 0x88, 0x3d, 0x12, 0xe0}
	discConditionalSwap   = [8]byte{0x2f, 0xa1, 0x64, 0x58, 0xcd, 0x91, 0x0b, 0x7e}
)
