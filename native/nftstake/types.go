package nftstake

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralCustody moves staked units between depositors and the ledger's
// custodian account. Implementations report failure through the returned
// error; the ledger treats any error as a failed transfer.
type CollateralCustody interface {
	OwnerOf(unitID uint64) (common.Address, error)
	IsApproved(owner, operator common.Address, unitID uint64) (bool, error)
	TransferIn(owner common.Address, unitID uint64) error
	TransferOut(recipient common.Address, unitID uint64) error
}

// FungibleVault spends fungible balances held by the ledger's custodian.
type FungibleVault interface {
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Transfer(token, to common.Address, amount *big.Int) error
}

// Authority decides whether an account holds the privileged admin role.
type Authority interface {
	IsAdmin(account common.Address) bool
}

// AdminAccount is an Authority granting the admin role to a single account.
type AdminAccount common.Address

// IsAdmin implements Authority.
func (a AdminAccount) IsAdmin(account common.Address) bool {
	return account != (common.Address{}) && common.Address(a) == account
}

// Config holds the deployment-time parameters of a ledger instance.
type Config struct {
	// Custodian is the account that holds staked units and the reward float.
	Custodian common.Address
	// StakingToken is the collection address of the accepted collateral.
	StakingToken common.Address
	// RewardToken is the fungible token paid to stakers.
	RewardToken common.Address
	// RewardRate is the number of reward-token units distributed per second
	// across all staked units.
	RewardRate uint64
	// Owner is the admin account reported by the owner view.
	Owner common.Address
}

// Validate ensures the configuration can back a ledger.
func (c Config) Validate() error {
	zero := common.Address{}
	switch {
	case c.Custodian == zero:
		return fmt.Errorf("nftstake: custodian address required")
	case c.StakingToken == zero:
		return fmt.Errorf("nftstake: staking token address required")
	case c.RewardToken == zero:
		return fmt.Errorf("nftstake: reward token address required")
	case c.Owner == zero:
		return fmt.Errorf("nftstake: owner address required")
	case c.RewardRate == 0:
		return fmt.Errorf("nftstake: reward rate must be positive")
	}
	return nil
}

// Summary is a read-only snapshot of the ledger-wide views.
type Summary struct {
	StakingToken   common.Address
	RewardToken    common.Address
	Owner          common.Address
	Custodian      common.Address
	TotalSupply    uint64
	RewardRate     uint64
	Paused         bool
	LastUpdateTime uint64
	RewardPerToken *big.Int
	Outstanding    *big.Int
	Paid           *big.Int
}

// Position is a read-only snapshot of one account.
type Position struct {
	Account common.Address
	Balance uint64
	Units   []uint64
	Earned  *big.Int
}
