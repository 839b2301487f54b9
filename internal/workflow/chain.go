package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/store"
)

// maxChainHops bounds the rewrite-chain walk; a longer chain indicates
// corrupted rewrite_of links.
const maxChainHops = 50

// ItemsChain walks rewrite_of back to the chain root and returns the
// ordered list [root, root translations, update-1, its translations, ...,
// item, item translations].
func (w *ItemWorkflow) ItemsChain(ctx context.Context, item models.Doc) ([]models.Doc, error) {
	backward := []models.Doc{item}
	current := item
	hops := 0
	for current.GetString(models.FieldRewriteOf) != "" {
		hops++
		if hops > maxChainHops {
			w.logger.Error("rewrite chain exceeded hop bound without reaching a root",
				zap.String("item", item.ID()))
			break
		}
		parent, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, current.GetString(models.FieldRewriteOf)))
		if err != nil {
			break
		}
		backward = append(backward, parent)
		current = parent
	}

	chain := make([]models.Doc, 0, len(backward)*2)
	for i := len(backward) - 1; i >= 0; i-- {
		link := backward[i]
		chain = append(chain, link)
		for _, translationID := range link.GetStringList(models.FieldTranslations) {
			translation, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, translationID))
			if err != nil {
				continue
			}
			chain = append(chain, translation)
		}
	}
	return chain, nil
}
