package tokens

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownToken  = errors.New("tokens: unknown token")
	ErrNotAuthorised = errors.New("tokens: caller is not owner nor approved")
	ErrWrongOwner    = errors.New("tokens: from is not the owner")
)

// Collection is an in-memory non-fungible token registry with ERC-721 style
// approvals. It backs devnets and tests; it is safe for concurrent use.
type Collection struct {
	mu        sync.RWMutex
	address   common.Address
	nextID    uint64
	owners    map[uint64]common.Address
	approvals map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
}

// NewCollection returns an empty collection deployed at address. Minted IDs
// start at one.
func NewCollection(address common.Address) *Collection {
	return &Collection{
		address:   address,
		nextID:    1,
		owners:    make(map[uint64]common.Address),
		approvals: make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

// Address returns the collection address.
func (c *Collection) Address() common.Address { return c.address }

// Mint creates the next token for to and returns its ID.
func (c *Collection) Mint(to common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.owners[id] = to
	return id
}

// OwnerOf returns the current holder of id.
func (c *Collection) OwnerOf(id uint64) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	return owner, nil
}

// BalanceOf counts the tokens held by owner.
func (c *Collection) BalanceOf(owner common.Address) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n uint64
	for _, holder := range c.owners {
		if holder == owner {
			n++
		}
	}
	return n
}

// Approve lets spender move a single token on behalf of its owner.
func (c *Collection) Approve(owner, spender common.Address, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	holder, ok := c.owners[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	if holder != owner && !c.operators[holder][owner] {
		return ErrNotAuthorised
	}
	c.approvals[id] = spender
	return nil
}

// GetApproved returns the single-token approval for id.
func (c *Collection) GetApproved(id uint64) common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.approvals[id]
}

// SetApprovalForAll toggles operator rights over every token of owner.
func (c *Collection) SetApprovalForAll(owner, operator common.Address, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops, ok := c.operators[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		c.operators[owner] = ops
	}
	if approved {
		ops[operator] = true
		return
	}
	delete(ops, operator)
}

// IsApproved reports whether operator may move id out of owner's wallet.
func (c *Collection) IsApproved(owner, operator common.Address, id uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isApproved(owner, operator, id)
}

func (c *Collection) isApproved(owner, operator common.Address, id uint64) bool {
	if owner == operator {
		return true
	}
	if c.operators[owner][operator] {
		return true
	}
	return c.approvals[id] == operator && operator != (common.Address{})
}

// TransferFrom moves id from from to to on behalf of operator. The
// single-token approval is cleared on success.
func (c *Collection) TransferFrom(operator, from, to common.Address, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	holder, ok := c.owners[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	if holder != from {
		return ErrWrongOwner
	}
	if !c.isApproved(from, operator, id) {
		return ErrNotAuthorised
	}
	c.owners[id] = to
	delete(c.approvals, id)
	return nil
}

// Custody adapts a Collection to the ledger's collateral capability. Every
// movement is performed by the custodian account.
type Custody struct {
	Collection *Collection
	Custodian  common.Address
}

// OwnerOf implements the collateral capability.
func (c Custody) OwnerOf(unitID uint64) (common.Address, error) {
	return c.Collection.OwnerOf(unitID)
}

// IsApproved implements the collateral capability.
func (c Custody) IsApproved(owner, operator common.Address, unitID uint64) (bool, error) {
	return c.Collection.IsApproved(owner, operator, unitID), nil
}

// TransferIn pulls unitID from owner into the custodian.
func (c Custody) TransferIn(owner common.Address, unitID uint64) error {
	return c.Collection.TransferFrom(c.Custodian, owner, c.Custodian, unitID)
}

// TransferOut returns unitID from the custodian to recipient.
func (c Custody) TransferOut(recipient common.Address, unitID uint64) error {
	return c.Collection.TransferFrom(c.Custodian, c.Custodian, recipient, unitID)
}
