package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// factoryEventVersion is the version of EventStoreCreated events.
const factoryEventVersion = "1"

// FactoryConfig fixes the behaviour of every store a factory creates.
type FactoryConfig struct {
	// Address seeds handle derivation. Factories with different addresses
	// hand out disjoint handles.
	Address       common.Address
	Policy        Policy
	StrictSchemas bool
}

// Instance is one event store together with its gate.
type Instance struct {
	Handle types.Handle
	Owner  types.Identity
	Store  *EventStore
	Gate   *Gate
}

// Factory creates event store instances and keeps the registry of who owns
// which. The registry is the replay of the factory's own log.
type Factory struct {
	mu        sync.RWMutex
	provider  store.Provider
	registry  *schema.Registry
	cfg       FactoryConfig
	log       store.EventLog
	owners    map[types.Identity][]types.Handle
	ownerOf   map[types.Handle]types.Identity
	order     []types.Handle
	instances map[types.Handle]*Instance
	logger    *slog.Logger
}

// NewFactory opens the factory stream from provider and replays it.
func NewFactory(ctx context.Context, provider store.Provider, registry *schema.Registry, cfg FactoryConfig, logger *slog.Logger) (*Factory, error) {
	if registry == nil {
		registry = schema.Default()
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	log, err := provider.Open(ctx, store.FactoryStream)
	if err != nil {
		return nil, fmt.Errorf("open factory stream: %w", err)
	}
	f := &Factory{
		provider:  provider,
		registry:  registry,
		cfg:       cfg,
		log:       log,
		owners:    make(map[types.Identity][]types.Handle),
		ownerOf:   make(map[types.Handle]types.Identity),
		instances: make(map[types.Handle]*Instance),
		logger:    logger,
	}
	n, err := store.Replay(ctx, log, 0, f.apply)
	if err != nil {
		return nil, fmt.Errorf("replay factory: %w", err)
	}
	logger.Info("factory ready", "address", cfg.Address.Hex(), "stores", n)
	return f, nil
}

func (f *Factory) apply(env types.EventEnvelope) error {
	if env.Event.Type != schema.EventStoreCreated {
		return fmt.Errorf("unexpected factory event %q", env.Event.Type)
	}
	h, ok := env.Event.Value.(types.AddressValue)
	if !ok {
		return fmt.Errorf("%s: handle is %s", env.Event.Type, env.Event.ValueType)
	}
	p, ok := env.Property("owner")
	if !ok {
		return fmt.Errorf("%s: no owner", env.Event.Type)
	}
	owner, ok := p.Value.(types.AddressValue)
	if !ok {
		return fmt.Errorf("%s: owner is %s", env.Event.Type, p.ValueType)
	}
	f.register(types.HandleFromAddress(h.Address()), types.IdentityFromAddress(owner.Address()))
	return nil
}

func (f *Factory) register(h types.Handle, owner types.Identity) {
	f.owners[owner] = append(f.owners[owner], h)
	f.ownerOf[h] = owner
	f.order = append(f.order, h)
}

// nextHandle derives the address of the next store the way a contract
// factory derives child addresses from its nonce.
func (f *Factory) nextHandle() (types.Handle, uint64) {
	nonce := uint64(len(f.order))
	return types.HandleFromAddress(crypto.CreateAddress(f.cfg.Address, nonce)), nonce
}

// CreateStore creates a fresh store owned by owner, who becomes its first
// admin.
func (f *Factory) CreateStore(ctx context.Context, owner types.Identity) (types.Handle, error) {
	inst, _, err := f.createStore(ctx, owner)
	if err != nil {
		return "", err
	}
	return inst.Handle, nil
}

func (f *Factory) createStore(ctx context.Context, owner types.Identity) (*Instance, types.EventEnvelope, error) {
	ctx, span := tracer.Start(ctx, "Factory.CreateStore")
	defer span.End()

	f.mu.Lock()
	defer f.mu.Unlock()

	h, nonce := f.nextHandle()
	span.SetAttributes(attribute.String("store", h.String()), attribute.String("owner", owner.String()))

	// The factory record is the commit point: once it is in the log the
	// store exists, and a gate left unbootstrapped by a failure below is
	// bootstrapped on the next open.
	ev, props, err := f.log.Append(ctx, types.Event{
		Type:       schema.EventStoreCreated,
		Version:    factoryEventVersion,
		ValueType:  types.ValueTypeAddress,
		Value:      types.AddressValue(h.Address()),
		Originator: owner,
	}, []types.Property{
		{Name: "owner", ValueType: types.ValueTypeAddress, Value: owner.Value()},
		{Name: "nonce", ValueType: types.ValueTypeUInt, Value: types.UIntValue(nonce)},
	})
	if err != nil {
		return nil, types.EventEnvelope{}, fmt.Errorf("record store %s: %w", h, err)
	}
	f.register(h, owner)

	inst, err := f.buildLocked(ctx, h, owner)
	if err != nil {
		return nil, types.EventEnvelope{}, err
	}
	f.logger.Info("store created", "store", h, "owner", owner, "nonce", nonce)
	return inst, types.EventEnvelope{Event: ev, Properties: props}, nil
}

func (f *Factory) buildLocked(ctx context.Context, h types.Handle, owner types.Identity) (*Instance, error) {
	if inst, ok := f.instances[h]; ok {
		return inst, nil
	}
	events, err := f.provider.Open(ctx, store.EventsStream(h))
	if err != nil {
		return nil, fmt.Errorf("open events of %s: %w", h, err)
	}
	rbac, err := f.provider.Open(ctx, store.RBACStream(h))
	if err != nil {
		return nil, fmt.Errorf("open rbac of %s: %w", h, err)
	}
	logger := f.logger.With("store", h)
	gate, err := NewGate(ctx, rbac, f.cfg.Policy, owner, logger)
	if err != nil {
		return nil, fmt.Errorf("gate of %s: %w", h, err)
	}
	inst := &Instance{
		Handle: h,
		Owner:  owner,
		Gate:   gate,
		Store: NewEventStore(events, gate, EventStoreOptions{
			Handle:        h,
			Registry:      f.registry,
			StrictSchemas: f.cfg.StrictSchemas,
			Logger:        f.logger,
		}),
	}
	f.instances[h] = inst
	return inst, nil
}

// Open returns the instance bound to h, building it from its logs on first
// use. Unknown handles fail with store.ErrNotFound.
func (f *Factory) Open(ctx context.Context, h types.Handle) (*Instance, error) {
	h, err := types.ParseHandle(h.String())
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	inst, cached := f.instances[h]
	owner, known := f.ownerOf[h]
	f.mu.RUnlock()
	if cached {
		return inst, nil
	}
	if !known {
		return nil, fmt.Errorf("store %s: %w", h, store.ErrNotFound)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buildLocked(ctx, h, owner)
}

// ListStores returns the handles created for owner, oldest first.
func (f *Factory) ListStores(owner types.Identity) []types.Handle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]types.Handle{}, f.owners[owner]...)
}

// ListAllStores returns every handle, in creation order.
func (f *Factory) ListAllStores() []types.Handle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]types.Handle{}, f.order...)
}

// OwnerOf returns the identity that created h.
func (f *Factory) OwnerOf(h types.Handle) (types.Identity, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	owner, ok := f.ownerOf[h]
	return owner, ok
}

func (f *Factory) Registry() *schema.Registry { return f.registry }
