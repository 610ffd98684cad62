package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/ids"
)

// collection stores one entity kind as JSON documents.
type collection[T any] struct {
	kind   string
	prefix string
	docs   DocumentStore
	id     func(*T) *string
}

func (c collection[T]) get(ctx context.Context, id string) (T, error) {
	var v T
	id = strings.TrimSpace(id)
	if id == "" {
		return v, fmt.Errorf("%w: %s id is required", apperr.ErrValidation, c.kind)
	}
	raw, err := c.docs.Get(ctx, c.kind, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", c.kind, id, err)
	}
	return v, nil
}

func (c collection[T]) exists(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	_, err := c.docs.Get(ctx, c.kind, strings.TrimSpace(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (c collection[T]) list(ctx context.Context) ([]T, error) {
	raws, err := c.docs.List(ctx, c.kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.kind, err)
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return *c.id(&out[i]) < *c.id(&out[j]) })
	return out, nil
}

// insert assigns an id when blank and refuses to overwrite.
func (c collection[T]) insert(ctx context.Context, v T) (T, error) {
	idp := c.id(&v)
	*idp = strings.TrimSpace(*idp)
	if *idp == "" {
		*idp = ids.WithPrefix(c.prefix)
	} else if ok, err := c.exists(ctx, *idp); err != nil {
		return v, err
	} else if ok {
		return v, fmt.Errorf("%w: %s %s already exists", apperr.ErrConflict, c.kind, *idp)
	}
	return v, c.put(ctx, v)
}

// replace overwrites an existing document and returns the previous value.
func (c collection[T]) replace(ctx context.Context, v T) (T, error) {
	prev, err := c.get(ctx, *c.id(&v))
	if err != nil {
		return prev, err
	}
	return prev, c.put(ctx, v)
}

func (c collection[T]) remove(ctx context.Context, id string) (T, error) {
	prev, err := c.get(ctx, id)
	if err != nil {
		return prev, err
	}
	return prev, c.docs.Delete(ctx, c.kind, strings.TrimSpace(id))
}

func (c collection[T]) put(ctx context.Context, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.kind, err)
	}
	if err := c.docs.Put(ctx, c.kind, *c.id(&v), raw); err != nil {
		return fmt.Errorf("store %s: %w", c.kind, err)
	}
	return nil
}

// diff lists the top-level JSON fields that differ between two values.
func diff(before, after any) []audit.Change {
	a, errA := flatten(before)
	b, errB := flatten(after)
	if errA != nil || errB != nil {
		return nil
	}
	keys := make([]string, 0, len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out []audit.Change
	for _, k := range keys {
		if a[k] != b[k] {
			out = append(out, audit.Change{Field: k, OldValue: a[k], NewValue: b[k]})
		}
	}
	return out
}

func flatten(v any) (map[string]string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}
