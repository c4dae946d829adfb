package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/store"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// gateEventVersion is the version of RoleGranted and RoleRevoked events.
const gateEventVersion = "1"

// Gate holds role membership for one store. Membership is the replay of the
// gate's own log; every effective change is appended there before it is
// applied in memory.
type Gate struct {
	mu      sync.RWMutex
	log     store.EventLog
	policy  Policy
	members map[Role]map[types.Identity]struct{}
	logger  *slog.Logger
}

// NewGate replays log into memory. An empty log is bootstrapped with an
// admin grant for bootstrapAdmin.
func NewGate(ctx context.Context, log store.EventLog, policy Policy, bootstrapAdmin types.Identity, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	g := &Gate{
		log:     log,
		policy:  policy.clone(),
		members: make(map[Role]map[types.Identity]struct{}),
		logger:  logger,
	}

	n, err := store.Replay(ctx, log, 0, g.apply)
	if err != nil {
		return nil, fmt.Errorf("replay gate: %w", err)
	}
	if n == 0 {
		if _, err := g.record(ctx, schema.RoleGranted, RoleAdmin, bootstrapAdmin, bootstrapAdmin); err != nil {
			return nil, fmt.Errorf("bootstrap gate: %w", err)
		}
		logger.Info("gate bootstrapped", "admin", bootstrapAdmin)
	}
	return g, nil
}

// membershipChange reads role and subject out of a gate event.
func membershipChange(env types.EventEnvelope) (Role, types.Identity, error) {
	role, ok := env.Event.Value.(types.Bytes32Value)
	if !ok {
		return "", "", fmt.Errorf("%s: role is %s", env.Event.Type, env.Event.ValueType)
	}
	p, ok := env.Property("subject")
	if !ok {
		return "", "", fmt.Errorf("%s: no subject", env.Event.Type)
	}
	subject, ok := p.Value.(types.AddressValue)
	if !ok {
		return "", "", fmt.Errorf("%s: subject is %s", env.Event.Type, p.ValueType)
	}
	return Role(coerce.TrimBytes32(role)), types.IdentityFromAddress(subject.Address()), nil
}

// apply folds one gate event into membership. Callers hold mu or have
// exclusive access.
func (g *Gate) apply(env types.EventEnvelope) error {
	role, subject, err := membershipChange(env)
	if err != nil {
		return err
	}
	switch env.Event.Type {
	case schema.RoleGranted:
		set, ok := g.members[role]
		if !ok {
			set = make(map[types.Identity]struct{})
			g.members[role] = set
		}
		set[subject] = struct{}{}
	case schema.RoleRevoked:
		delete(g.members[role], subject)
	default:
		return fmt.Errorf("unexpected gate event %q", env.Event.Type)
	}
	return nil
}

// record appends one gate event and applies it.
func (g *Gate) record(ctx context.Context, eventType string, role Role, subject, admin types.Identity) (types.EventEnvelope, error) {
	tag, err := coerce.PadBytes32(string(role))
	if err != nil {
		return types.EventEnvelope{}, fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	ev, props, err := g.log.Append(ctx, types.Event{
		Type:       eventType,
		Version:    gateEventVersion,
		ValueType:  types.ValueTypeBytes32,
		Value:      types.Bytes32Value(tag),
		Originator: admin,
	}, []types.Property{
		{Name: "subject", ValueType: types.ValueTypeAddress, Value: subject.Value()},
		{Name: "admin", ValueType: types.ValueTypeAddress, Value: admin.Value()},
	})
	if err != nil {
		return types.EventEnvelope{}, err
	}
	env := types.EventEnvelope{Event: ev, Properties: props}
	if err := g.apply(env); err != nil {
		return types.EventEnvelope{}, err
	}
	return env, nil
}

func (g *Gate) hasRoleLocked(subject types.Identity, role Role) bool {
	_, ok := g.members[role][subject]
	return ok
}

func (g *Gate) authorizedLocked(subject types.Identity, action Action) bool {
	for _, role := range g.policy[action] {
		if g.hasRoleLocked(subject, role) {
			return true
		}
	}
	return false
}

// change runs one grant or revoke. It returns no envelope when membership
// is already in the requested state.
func (g *Gate) change(ctx context.Context, action Action, admin types.Identity, role string, subject types.Identity) ([]types.EventEnvelope, error) {
	ctx, span := tracer.Start(ctx, "Gate."+string(action))
	defer span.End()
	span.SetAttributes(attribute.String("role", role), attribute.String("subject", subject.String()))

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authorizedLocked(admin, action) {
		return nil, fmt.Errorf("%w: %s may not %s", ErrUnauthorized, admin, action)
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}

	has := g.hasRoleLocked(subject, r)
	eventType := schema.RoleGranted
	if action == ActionRevoke {
		eventType = schema.RoleRevoked
	}
	if has == (action == ActionGrant) {
		g.logger.Debug("membership unchanged", "action", action, "role", r, "subject", subject)
		return []types.EventEnvelope{}, nil
	}

	env, err := g.record(ctx, eventType, r, subject, admin)
	if err != nil {
		return nil, err
	}
	g.logger.Info("membership changed", "action", action, "role", r, "subject", subject, "admin", admin)
	return []types.EventEnvelope{env}, nil
}

// Grant gives role to subject. admin must be permitted to grant.
func (g *Gate) Grant(ctx context.Context, admin types.Identity, role string, subject types.Identity) ([]types.EventEnvelope, error) {
	return g.change(ctx, ActionGrant, admin, role, subject)
}

// Revoke removes role from subject. admin must be permitted to revoke.
// Revoking the last admin is allowed and leaves membership frozen.
func (g *Gate) Revoke(ctx context.Context, admin types.Identity, role string, subject types.Identity) ([]types.EventEnvelope, error) {
	return g.change(ctx, ActionRevoke, admin, role, subject)
}

// IsAuthorized reports whether subject holds any role the policy lists for
// action.
func (g *Gate) IsAuthorized(subject types.Identity, action Action) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authorizedLocked(subject, action)
}

func (g *Gate) HasRole(subject types.Identity, role Role) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasRoleLocked(subject, role)
}

// Members returns the holders of role, sorted.
func (g *Gate) Members(role Role) []types.Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]types.Identity, 0, len(g.members[role]))
	for id := range g.members[role] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// History returns every grant and revoke in the order they were recorded.
func (g *Gate) History(ctx context.Context) ([]types.EventEnvelope, error) {
	out := make([]types.EventEnvelope, 0)
	if _, err := store.Replay(ctx, g.log, 0, func(env types.EventEnvelope) error {
		out = append(out, env)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}
