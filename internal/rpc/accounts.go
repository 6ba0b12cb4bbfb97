package rpc

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ProposalAccount is the decoded on-chain proposal record.
type ProposalAccount struct {
	Proposal      string   // Proposal PDA (the queried address)
	ProposalID    uint64   // Numeric proposal id
	NumOptions    int      // Number of outcome markets
	CreatedAt     int64    // Unix seconds
	TimeRemaining int64    // Seconds until the proposal ends
	Moderator     string   // Moderator account PDA
	Name          string   // Display name
	BaseMint      string   // Base asset mint
	QuoteMint     string   // Quote asset mint
	Pools         []string // Conditional pool PDAs, index = option index
}

// ModeratorAccount is the decoded moderator record.
type ModeratorAccount struct {
	Moderator string // Moderator PDA (the queried address)
	Authority string // Controlling authority
	DAO       string // DAO PDA this moderator belongs to (account may not exist yet)
}

// DAOAccount is the decoded DAO record.
type DAOAccount struct {
	DAO          string // DAO PDA (the queried address)
	Moderator    string // Moderator recorded by the DAO
	IsChild      bool   // True when the DAO has a parent (unsupported)
	SpotPool     string // Spot pool PDA
	SpotPoolKind string // "amm" or "clmm"
}

// GetProposal fetches and decodes a proposal account.
func (c *Client) GetProposal(ctx context.Context, address string) (*ProposalAccount, error) {
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}

	r := accountReader{buf: data}
	r.skip(8) // account discriminator
	acc := &ProposalAccount{
		Proposal:      address,
		ProposalID:    r.u64(),
		NumOptions:    int(r.u8()),
		CreatedAt:     r.i64(),
		TimeRemaining: r.i64(),
		Moderator:     r.pubkey(),
		Name:          r.str(),
		BaseMint:      r.pubkey(),
		QuoteMint:     r.pubkey(),
	}
	poolCount := int(r.u32())
	for i := 0; i < poolCount && !r.failed; i++ {
		acc.Pools = append(acc.Pools, r.pubkey())
	}
	if r.failed {
		return nil, fmt.Errorf("malformed proposal account %s", address)
	}
	return acc, nil
}

// GetModerator fetches and decodes a moderator account.
func (c *Client) GetModerator(ctx context.Context, address string) (*ModeratorAccount, error) {
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}

	r := accountReader{buf: data}
	r.skip(8)
	acc := &ModeratorAccount{
		Moderator: address,
		Authority: r.pubkey(),
		DAO:       r.pubkey(),
	}
	if r.failed {
		return nil, fmt.Errorf("malformed moderator account %s", address)
	}
	return acc, nil
}

// GetDAO fetches and decodes a DAO account. Returns ErrNotFound when the
// account does not exist; callers treat that as "DAO not created yet".
func (c *Client) GetDAO(ctx context.Context, address string) (*DAOAccount, error) {
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}

	r := accountReader{buf: data}
	r.skip(8)
	acc := &DAOAccount{
		DAO:       address,
		Moderator: r.pubkey(),
	}
	parent := r.pubkey()
	acc.IsChild = !isZeroKey(parent)
	acc.SpotPool = r.pubkey()
	switch r.u8() {
	case 0:
		acc.SpotPoolKind = "amm"
	case 1:
		acc.SpotPoolKind = "clmm"
	default:
		acc.SpotPoolKind = "unknown"
	}
	if r.failed {
		return nil, fmt.Errorf("malformed dao account %s", address)
	}
	return acc, nil
}

// PoolInitialized reports whether a pool account exists at the address.
// Used to filter a proposal's pool list down to initialized pools.
func (c *Client) PoolInitialized(ctx context.Context, address string) (bool, error) {
	_, err := c.getAccountData(ctx, address)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListProposals returns the addresses of all proposal accounts owned by
// the program. Used by the reconcile loop to catch launches missed while
// the log stream was down.
func (c *Client) ListProposals(ctx context.Context, program string) ([]string, error) {
	var result []struct {
		Pubkey string `json:"pubkey"`
	}
	err := c.call(ctx, "getProgramAccounts", []any{
		program,
		map[string]any{
			"encoding":   "base64",
			"commitment": c.commitment,
			"dataSlice":  map[string]int{"offset": 0, "length": 0},
		},
	}, &result)
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(result))
	for _, entry := range result {
		addrs = append(addrs, entry.Pubkey)
	}
	return addrs, nil
}

// getAccountData fetches the raw account bytes, or ErrNotFound.
func (c *Client) getAccountData(ctx context.Context, address string) ([]byte, error) {
	var result struct {
		Value *struct {
			Data []string `json:"data"` // [payload, encoding]
		} `json:"value"`
	}
	err := c.call(ctx, "getAccountInfo", []any{
		address,
		map[string]string{"encoding": "base64", "commitment": c.commitment},
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, ErrNotFound
	}
	if len(result.Value.Data) < 1 {
		return nil, fmt.Errorf("account %s: empty data", address)
	}

	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("account %s: decode data: %w", address, err)
	}
	return data, nil
}

func isZeroKey(key string) bool {
	return key == "" || key == base58.Encode(make([]byte, 32))
}

// accountReader walks a little-endian account layout.
type accountReader struct {
	buf    []byte
	pos    int
	failed bool
}

func (r *accountReader) take(n int) []byte {
	if r.failed || r.pos+n > len(r.buf) {
		r.failed = true
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *accountReader) skip(n int) {
	r.take(n)
}

func (r *accountReader) pubkey() string {
	b := r.take(32)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}

func (r *accountReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *accountReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *accountReader) i64() int64 {
	return int64(r.u64())
}

func (r *accountReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *accountReader) str() string {
	n := int(r.u32())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}
