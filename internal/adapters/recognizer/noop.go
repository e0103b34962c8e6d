// Package recognizer hosts symbol-recognition adapters. Recognition itself is
// an external collaborator; Noop stands in when none is wired, producing an
// empty grid so the pipeline keeps flowing.
package recognizer

import (
	"context"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

type Noop struct{}

func (Noop) Recognize(ctx context.Context, screenshotPath string, layout domain.GameLayout) (domain.SymbolGrid, error) {
	return domain.SymbolGrid{}, nil
}
