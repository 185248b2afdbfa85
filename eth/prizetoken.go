// Package eth adapts on-chain collaborators to the engine's capability
// interfaces for deployments that custody a real ERC-20 prize token.
package eth

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// txTimeout bounds how long a transfer waits for its transaction to mine.
const txTimeout = 5 * time.Minute

// ERC20PrizeToken implements lotto.PrizeToken over a deployed ERC-20
// contract. Transfers block until the transaction mines so the engine's
// effects-then-transfer ordering observes real settlement.
type ERC20PrizeToken struct {
	addr     ethcommon.Address
	contract *bind.BoundContract
	client   *ethclient.Client
	opts     *bind.TransactOpts
}

// NewERC20PrizeToken binds the token at addr, transacting with opts.
func NewERC20PrizeToken(client *ethclient.Client, addr ethcommon.Address, opts *bind.TransactOpts) (*ERC20PrizeToken, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parsing ERC-20 ABI")
	}
	return &ERC20PrizeToken{
		addr:     addr,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		client:   client,
		opts:     opts,
	}, nil
}

// Address returns the token contract address.
func (t *ERC20PrizeToken) Address() ethcommon.Address {
	return t.addr
}

// Transfer moves amount from the transacting account to the given address.
func (t *ERC20PrizeToken) Transfer(to ethcommon.Address, amount *big.Int) error {
	return t.transact("transfer", to, amount)
}

// TransferFrom pulls amount from a payer that has approved the
// transacting account.
func (t *ERC20PrizeToken) TransferFrom(from, to ethcommon.Address, amount *big.Int) error {
	return t.transact("transferFrom", from, to, amount)
}

// BalanceOf returns the token balance of an address.
func (t *ERC20PrizeToken) BalanceOf(addr ethcommon.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{}, &out, "balanceOf", addr); err != nil {
		return nil, errors.Wrapf(err, "balanceOf %v", addr.Hex())
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected balanceOf return %T", out[0])
	}
	return balance, nil
}

func (t *ERC20PrizeToken) transact(method string, params ...interface{}) error {
	tx, err := t.contract.Transact(t.opts, method, params...)
	if err != nil {
		return errors.Wrapf(err, "submitting %v", method)
	}

	ctx, cancel := context.WithTimeout(context.Background(), txTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(ctx, t.client, tx)
	if err != nil {
		return errors.Wrapf(err, "waiting for %v tx %v", method, tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.Errorf("%v tx %v reverted", method, tx.Hash().Hex())
	}

	glog.V(6).Infof("token %v mined method=%v tx=%v", t.addr.Hex(), method, tx.Hash().Hex())
	return nil
}
