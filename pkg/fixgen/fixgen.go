// Package fixgen composes fix generators. The usual arrangement tries the
// deterministic rules generator first and falls through to the LLM-backed
// one for issues no rule covers.
package fixgen

import (
	"context"

	"github.com/remedly/sdk/pkg/core"
	sdkerrors "github.com/remedly/sdk/pkg/errors"
)

// Chain tries each generator in order and returns the first fix. Only
// fix-generation errors fall through; network, auth and timeout failures
// surface immediately because the next generator would see them too or would
// silently mask an outage.
type Chain struct {
	generators []core.FixGenerator
}

// NewChain creates a chain over the given generators.
func NewChain(generators ...core.FixGenerator) (*Chain, error) {
	if len(generators) == 0 {
		return nil, sdkerrors.New("fixgen: chain needs at least one generator")
	}
	for _, g := range generators {
		if g == nil {
			return nil, sdkerrors.New("fixgen: chain contains a nil generator")
		}
	}
	return &Chain{generators: generators}, nil
}

// Name identifies the collaborator in logs and telemetry.
func (c *Chain) Name() string {
	name := "chain("
	for i, g := range c.generators {
		if i > 0 {
			name += ","
		}
		name += g.Name()
	}
	return name + ")"
}

// GenerateFix returns the first generator's fix, falling through on
// fix-generation errors.
func (c *Chain) GenerateFix(ctx context.Context, promptText string) (*core.ProposedFix, error) {
	var lastErr error
	for _, g := range c.generators {
		fix, err := g.GenerateFix(ctx, promptText)
		if err == nil {
			return fix, nil
		}
		if sdkerrors.GetKind(err) != sdkerrors.KindFixGeneration {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

var _ core.FixGenerator = (*Chain)(nil)
