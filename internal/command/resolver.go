// Package command implements CommandResolver and CommandQueue (spec.md
// §4.6): schema-validated payload coercion and a bounded FIFO queue
// draining into the module that registered each command.
package command

import (
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/module"
)

// SchemaLookup resolves a command name to its registered schema —
// satisfied by (*module.Registry).CommandSchema, kept as a function type
// so this package does not need to depend on module.Registry's full
// surface.
type SchemaLookup func(name string) (module.CommandSchema, error)

// Resolver validates and coerces a raw payload against a command's
// registered schema.
type Resolver struct {
	lookup SchemaLookup
}

// NewResolver creates a resolver backed by lookup.
func NewResolver(lookup SchemaLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Validate resolves name's schema, rejects unknown or missing-required
// fields, and coerces present fields into their declared type, allowing
// only widenings within the numeric tower (narrower type arriving where a
// wider one is declared is accepted and converted; a wider value arriving
// where a narrower one is declared is rejected, since it may lose
// precision or range).
func (r *Resolver) Validate(name string, payload map[string]any) (module.Command, error) {
	schema, err := r.lookup(name)
	if err != nil {
		return module.Command{}, err
	}

	declared := make(map[string]module.Field, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Name] = f
	}
	for key := range payload {
		if _, ok := declared[key]; !ok {
			return module.Command{}, errs.Newf(errs.InvalidArgument, "command %q: unknown field %q", name, key)
		}
	}

	coerced := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		raw, present := payload[f.Name]
		if !present {
			if f.Required {
				return module.Command{}, errs.Newf(errs.InvalidArgument, "command %q: missing required field %q", name, f.Name)
			}
			continue
		}
		v, err := coerce(raw, f.Type)
		if err != nil {
			return module.Command{}, errs.Newf(errs.InvalidArgument, "command %q: field %q: %v", name, f.Name, err)
		}
		coerced[f.Name] = v
	}

	return module.Command{Name: name, Payload: coerced}, nil
}

// coerce converts raw into the Go type backing ft, allowing only
// widenings: int takes int8/int16/int32 (and an in-range int), long takes
// any signed integer type, float takes float32 and int8/int16/int32, and
// double takes any signed integer or float type. Narrowings (and int64
// or int into float) are rejected.
func coerce(raw any, ft module.FieldType) (any, error) {
	switch ft {
	case module.FieldBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return nil, errs.New(errs.InvalidArgument, "expected bool")

	case module.FieldString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, errs.New(errs.InvalidArgument, "expected string")

	case module.FieldInt:
		switch v := raw.(type) {
		case int32:
			return v, nil
		case int16:
			return int32(v), nil
		case int8:
			return int32(v), nil
		case int:
			if v < -(1<<31) || v > (1<<31-1) {
				return nil, errs.New(errs.InvalidArgument, "int value out of int32 range")
			}
			return int32(v), nil
		default:
			return nil, errs.New(errs.InvalidArgument, "expected a value widenable to int32")
		}

	case module.FieldLong:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int:
			return int64(v), nil
		default:
			return nil, errs.New(errs.InvalidArgument, "expected a value widenable to int64")
		}

	case module.FieldFloat:
		switch v := raw.(type) {
		case float32:
			return v, nil
		case int32:
			return float32(v), nil
		case int16:
			return float32(v), nil
		case int8:
			return float32(v), nil
		default:
			return nil, errs.New(errs.InvalidArgument, "expected a value widenable to float32")
		}

	case module.FieldDouble:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int16:
			return float64(v), nil
		case int8:
			return float64(v), nil
		case int:
			return float64(v), nil
		default:
			return nil, errs.New(errs.InvalidArgument, "expected a value widenable to float64")
		}

	default:
		return nil, errs.Newf(errs.Internal, "unknown field type %v", ft)
	}
}
