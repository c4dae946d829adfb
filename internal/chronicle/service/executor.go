package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// Executor runs submitted operations. It is the execution backend: callers
// hand it wire-encoded arguments and get back the wire log of what was
// recorded.
type Executor struct {
	factory *Factory
	logger  *slog.Logger
}

func NewExecutor(f *Factory, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{factory: f, logger: logger}
}

func (x *Executor) Factory() *Factory { return x.factory }

// Submit runs one operation atomically and returns the records it emitted:
// an EsEvent followed by its EsEventProperty records for every event
// appended to any log. A grant or revoke that changes nothing emits none.
func (x *Executor) Submit(ctx context.Context, sub types.Submission) ([]types.WireEvent, error) {
	ctx, span := tracer.Start(ctx, "Executor.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("op", string(sub.Op)), attribute.String("store", sub.Store))

	envs, err := x.dispatch(ctx, sub)
	if err != nil {
		span.SetStatus(codes.Error, Code(err))
		x.logger.Debug("submission rejected", "op", sub.Op, "store", sub.Store, "code", Code(err), "err", err)
		return nil, err
	}

	out := make([]types.WireEvent, 0, len(envs))
	for _, env := range envs {
		recs, err := coerce.EncodeEnvelope(env)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", env.Event.ID, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (x *Executor) dispatch(ctx context.Context, sub types.Submission) ([]types.EventEnvelope, error) {
	caller, err := types.ParseIdentity(sub.Caller)
	if err != nil {
		return nil, err
	}

	switch sub.Op {
	case types.OpCreateStore:
		_, env, err := x.factory.createStore(ctx, caller)
		if err != nil {
			return nil, err
		}
		return []types.EventEnvelope{env}, nil

	case types.OpAppend:
		inst, err := x.open(ctx, sub.Store)
		if err != nil {
			return nil, err
		}
		if err := authorize(inst, caller, ActionAppend); err != nil {
			return nil, err
		}
		req, err := x.appendRequest(sub)
		if err != nil {
			return nil, err
		}
		env, err := inst.Store.append(ctx, caller, req)
		if err != nil {
			return nil, err
		}
		return []types.EventEnvelope{env}, nil

	case types.OpGrant, types.OpRevoke:
		inst, err := x.open(ctx, sub.Store)
		if err != nil {
			return nil, err
		}
		action := ActionGrant
		if sub.Op == types.OpRevoke {
			action = ActionRevoke
		}
		if err := authorize(inst, caller, action); err != nil {
			return nil, err
		}
		role, subject, err := x.roleCommand(sub)
		if err != nil {
			return nil, err
		}
		if action == ActionGrant {
			return inst.Gate.Grant(ctx, caller, role, subject)
		}
		return inst.Gate.Revoke(ctx, caller, role, subject)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, sub.Op)
}

// authorize rejects callers before their arguments are decoded. The store
// and gate check again under their own locks.
func authorize(inst *Instance, caller types.Identity, action Action) error {
	if !inst.Gate.IsAuthorized(caller, action) {
		return fmt.Errorf("%w: %s may not %s", ErrUnauthorized, caller, action)
	}
	return nil
}

func (x *Executor) open(ctx context.Context, store string) (*Instance, error) {
	h, err := types.ParseHandle(store)
	if err != nil {
		return nil, err
	}
	return x.factory.Open(ctx, h)
}

func (x *Executor) record(name string, args map[string]any) (coerce.Record, error) {
	s, err := x.factory.registry.SchemaFor(name)
	if err != nil {
		return coerce.Record{}, err
	}
	return coerce.RecordFromArgs(args, s)
}

func text(rec coerce.Record, name string) (string, error) {
	v, err := rec.Typed(name)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (x *Executor) appendRequest(sub types.Submission) (AppendRequest, error) {
	rec, err := x.record(schema.AppendCommand, sub.Args)
	if err != nil {
		return AppendRequest{}, err
	}
	var req AppendRequest
	if req.Type, err = text(rec, "Type"); err != nil {
		return AppendRequest{}, err
	}
	if req.Version, err = text(rec, "Version"); err != nil {
		return AppendRequest{}, err
	}
	if req.ValueType, req.Value, err = coerce.DecodeSlot(rec); err != nil {
		return AppendRequest{}, err
	}

	req.Properties = make([]types.Property, 0, len(sub.Properties))
	for i, args := range sub.Properties {
		prec, err := x.record(schema.AppendProperty, args)
		if err != nil {
			return AppendRequest{}, fmt.Errorf("property %d: %w", i, err)
		}
		var p types.Property
		if p.Name, err = text(prec, "Name"); err != nil {
			return AppendRequest{}, fmt.Errorf("property %d: %w", i, err)
		}
		if p.ValueType, p.Value, err = coerce.DecodeSlot(prec); err != nil {
			return AppendRequest{}, fmt.Errorf("property %d: %w", i, err)
		}
		req.Properties = append(req.Properties, p)
	}
	return req, nil
}

func (x *Executor) roleCommand(sub types.Submission) (string, types.Identity, error) {
	rec, err := x.record(schema.RoleCommand, sub.Args)
	if err != nil {
		return "", "", err
	}
	role, err := text(rec, "Role")
	if err != nil {
		return "", "", err
	}
	subject, err := rec.Typed("Subject")
	if err != nil {
		return "", "", err
	}
	return role, types.IdentityFromAddress(subject.(common.Address)), nil
}
