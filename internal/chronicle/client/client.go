// Package client is the typed caller side of an execution backend. It
// serializes commands into wire arguments, submits them and decodes the
// emitted wire log back into events.
package client

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// Backend runs one submission atomically and returns the records it
// emitted.
type Backend interface {
	Submit(ctx context.Context, sub types.Submission) ([]types.WireEvent, error)
}

// Property is one named value of an appended event.
type Property struct {
	Name  string
	Value types.Value
}

// Command is one event to append.
type Command struct {
	Type       string
	Version    string
	Value      types.Value
	Properties []Property
}

// Client submits operations on behalf of one caller.
type Client struct {
	backend  Backend
	registry *schema.Registry
	caller   types.Identity
}

func New(backend Backend, registry *schema.Registry, caller types.Identity) *Client {
	if registry == nil {
		registry = schema.Default()
	}
	return &Client{backend: backend, registry: registry, caller: caller}
}

// As returns a client for another caller over the same backend.
func (c *Client) As(caller types.Identity) *Client {
	return &Client{backend: c.backend, registry: c.registry, caller: caller}
}

func (c *Client) Caller() types.Identity { return c.caller }

func (c *Client) submit(ctx context.Context, sub types.Submission) ([]types.EventEnvelope, error) {
	sub.Caller = c.caller.String()
	log, err := c.backend.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	envs, err := coerce.DecodeLog(log, c.registry)
	if err != nil {
		return nil, fmt.Errorf("decode %s result: %w", sub.Op, err)
	}
	return envs, nil
}

// CreateStore creates a store owned by the caller and returns its handle.
func (c *Client) CreateStore(ctx context.Context) (types.Handle, error) {
	envs, err := c.submit(ctx, types.Submission{Op: types.OpCreateStore})
	if err != nil {
		return "", err
	}
	if len(envs) != 1 || envs[0].Event.Type != schema.EventStoreCreated {
		return "", fmt.Errorf("%w: createStore returned %d events", coerce.ErrMalformedLog, len(envs))
	}
	h, ok := envs[0].Event.Value.(types.AddressValue)
	if !ok {
		return "", fmt.Errorf("%w: store handle is %s", coerce.ErrTypeMismatch, envs[0].Event.ValueType)
	}
	return types.HandleFromAddress(h.Address()), nil
}

func bytes32Arg(field, s string) (any, error) {
	w, err := coerce.ToWire(s, schema.KindBytes32)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return w, nil
}

// Append appends cmd to store h and returns the stored event with its
// properties.
func (c *Client) Append(ctx context.Context, h types.Handle, cmd Command) (types.EventEnvelope, error) {
	args := make(map[string]any, 6)
	var err error
	if args["Type"], err = bytes32Arg("Type", cmd.Type); err != nil {
		return types.EventEnvelope{}, err
	}
	if args["Version"], err = bytes32Arg("Version", cmd.Version); err != nil {
		return types.EventEnvelope{}, err
	}
	if err := coerce.EncodeSlot(cmd.Value, args); err != nil {
		return types.EventEnvelope{}, err
	}

	props := make([]map[string]any, 0, len(cmd.Properties))
	for i, p := range cmd.Properties {
		pargs := make(map[string]any, 5)
		if pargs["Name"], err = bytes32Arg("Name", p.Name); err != nil {
			return types.EventEnvelope{}, fmt.Errorf("property %d: %w", i, err)
		}
		if err := coerce.EncodeSlot(p.Value, pargs); err != nil {
			return types.EventEnvelope{}, fmt.Errorf("property %d: %w", i, err)
		}
		props = append(props, pargs)
	}

	envs, err := c.submit(ctx, types.Submission{
		Op: types.OpAppend, Store: h.String(), Args: args, Properties: props,
	})
	if err != nil {
		return types.EventEnvelope{}, err
	}
	if len(envs) != 1 {
		return types.EventEnvelope{}, fmt.Errorf("%w: append returned %d events", coerce.ErrMalformedLog, len(envs))
	}
	return envs[0], nil
}

// Dispatch appends cmd like Append and returns the result in its
// application-facing form.
func (c *Client) Dispatch(ctx context.Context, h types.Handle, cmd Command) (types.AppEvent, error) {
	env, err := c.Append(ctx, h, cmd)
	if err != nil {
		return types.AppEvent{}, err
	}
	return coerce.ToAppEvent(env)
}

func (c *Client) role(ctx context.Context, op types.Operation, h types.Handle, role string, subject types.Identity) ([]types.EventEnvelope, error) {
	r, err := bytes32Arg("Role", role)
	if err != nil {
		return nil, err
	}
	subjectArg, err := coerce.ToWire(subject.Address(), schema.KindAddress)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, types.Submission{
		Op: op, Store: h.String(),
		Args: map[string]any{"Role": r, "Subject": subjectArg},
	})
}

// Grant gives role to subject in store h. The result is empty when subject
// already held the role.
func (c *Client) Grant(ctx context.Context, h types.Handle, role string, subject types.Identity) ([]types.EventEnvelope, error) {
	return c.role(ctx, types.OpGrant, h, role, subject)
}

// Revoke removes role from subject in store h. The result is empty when
// subject did not hold the role.
func (c *Client) Revoke(ctx context.Context, h types.Handle, role string, subject types.Identity) ([]types.EventEnvelope, error) {
	return c.role(ctx, types.OpRevoke, h, role, subject)
}
