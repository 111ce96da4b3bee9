package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	pgerrors "github.com/peergramhq/peergram/pkg/errors"
	"github.com/peergramhq/peergram/pkg/state"
)

// registryABI is the interface of the on-ledger registry contract holding
// the entry list and count.
const registryABI = `[
  {"type":"function","name":"entryCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"entries","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},
    {"name":"contentHash","type":"string"},
    {"name":"description","type":"string"},
    {"name":"owner","type":"address"},
    {"name":"tipAmount","type":"uint256"}
  ]},
  {"type":"function","name":"register","stateMutability":"nonpayable","inputs":[
    {"name":"contentHash","type":"string"},
    {"name":"description","type":"string"}
  ],"outputs":[]},
  {"type":"function","name":"tipOwner","stateMutability":"payable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]}
]`

// TxHandle acknowledges that a signed operation was admitted for inclusion.
// Final settlement is not consumed by this client.
type TxHandle struct {
	Hash string `json:"hash"`
}

// Registry is a handle to the registry contract deployed on the connected
// network, bound to an address and a signing identity.
type Registry struct {
	provider *Provider
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	from     common.Address
	logger   *zap.Logger
}

// NewRegistry binds the registry contract at the given address, signing as
// the given identity.
func NewRegistry(provider *Provider, address common.Address, identity string, logger *zap.Logger) (*Registry, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	if !common.IsHexAddress(identity) {
		return nil, fmt.Errorf("invalid identity address: %s", identity)
	}

	return &Registry{
		provider: provider,
		contract: bind.NewBoundContract(address, parsed, provider.eth, provider.eth, provider.eth),
		abi:      parsed,
		address:  address,
		from:     common.HexToAddress(identity),
		logger:   logger,
	}, nil
}

// Address returns the bound contract address
func (r *Registry) Address() string {
	return r.address.Hex()
}

// Count returns the total number of registered entries
func (r *Registry) Count(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "entryCount"); err != nil {
		return 0, pgerrors.NewFetchError(0, err)
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return count.Uint64(), nil
}

// EntryAt fetches the entry with the given 1-based id
func (r *Registry) EntryAt(ctx context.Context, id uint64) (state.Entry, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "entries", new(big.Int).SetUint64(id)); err != nil {
		return state.Entry{}, pgerrors.NewFetchError(id, err)
	}
	return entryFromOutputs(out)
}

// entryFromOutputs converts the raw contract call outputs into an Entry
func entryFromOutputs(out []interface{}) (state.Entry, error) {
	if len(out) != 5 {
		return state.Entry{}, fmt.Errorf("unexpected entry tuple arity: %d", len(out))
	}
	id := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	contentHash := *abi.ConvertType(out[1], new(string)).(*string)
	description := *abi.ConvertType(out[2], new(string)).(*string)
	owner := *abi.ConvertType(out[3], new(common.Address)).(*common.Address)
	tipAmount := *abi.ConvertType(out[4], new(*big.Int)).(**big.Int)

	return state.Entry{
		ID:          id.Uint64(),
		ContentHash: contentHash,
		Description: description,
		Owner:       owner.Hex(),
		TipAmount:   tipAmount,
	}, nil
}

// Register records a content identifier and description as a new entry,
// signed by the bound identity. The returned handle carries the acceptance
// acknowledgment (transaction hash), not settlement.
func (r *Registry) Register(ctx context.Context, contentHash, description string) (TxHandle, error) {
	handle, err := r.transact(ctx, nil, "register", contentHash, description)
	if err != nil {
		return TxHandle{}, pgerrors.NewTxRejectedError("register", err)
	}

	r.logger.Info("entry registered",
		zap.String("tx", handle.Hash),
		zap.String("content_hash", contentHash),
	)
	return handle, nil
}

// Tip sends value to the owner of the entry with the given id. The amount is
// attached as transferred value in the ledger's native unit.
func (r *Registry) Tip(ctx context.Context, id uint64, amount *big.Int) (TxHandle, error) {
	if amount == nil || amount.Sign() <= 0 {
		return TxHandle{}, pgerrors.NewValidationError("amount", "tip amount must be positive", amount)
	}

	handle, err := r.transact(ctx, amount, "tipOwner", new(big.Int).SetUint64(id))
	if err != nil {
		return TxHandle{}, pgerrors.NewTxRejectedError("tip", err)
	}

	r.logger.Info("tip sent",
		zap.String("tx", handle.Hash),
		zap.Uint64("entry_id", id),
		zap.String("amount", amount.String()),
	)
	return handle, nil
}

// transact submits a state-changing contract call in whichever signing mode
// the provider is in.
func (r *Registry) transact(ctx context.Context, value *big.Int, method string, params ...interface{}) (TxHandle, error) {
	opts, err := r.provider.transactor(ctx)
	if err != nil {
		return TxHandle{}, err
	}

	if opts != nil {
		// Keyed mode: sign locally and submit the raw transaction
		opts.Value = value
		tx, err := r.contract.Transact(opts, method, params...)
		if err != nil {
			return TxHandle{}, err
		}
		return TxHandle{Hash: tx.Hash().Hex()}, nil
	}

	// Node-managed mode: the node signs for the bound identity
	data, err := r.abi.Pack(method, params...)
	if err != nil {
		return TxHandle{}, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	arg := map[string]interface{}{
		"from": r.from,
		"to":   r.address,
		"data": hexutil.Encode(data),
	}
	if value != nil {
		arg["value"] = (*hexutil.Big)(value)
	}

	var txHash common.Hash
	if err := r.provider.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", arg); err != nil {
		return TxHandle{}, err
	}
	return TxHandle{Hash: txHash.Hex()}, nil
}
