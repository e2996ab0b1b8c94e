package llmapi

import (
	"context"
	"fmt"

	"github.com/mimelyc/subtrans/pkg/log"
)

// BatchTranslate translates texts in chunks of batchSize, recursively
// halving the chunk on a response-count mismatch. At batchSize==1 a
// mismatch is no longer retried: the best available line is kept (or the
// original text, untranslated, if the response was empty) rather than
// looping forever on a model that can't follow the numbering contract.
func BatchTranslate(ctx context.Context, client Client, texts []string, sourceLanguage, targetLanguage, mediaContext string, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	return batchTranslateRange(ctx, client, texts, sourceLanguage, targetLanguage, mediaContext, batchSize, 0, len(texts))
}

func batchTranslateRange(
	ctx context.Context,
	client Client,
	texts []string,
	sourceLanguage, targetLanguage, mediaContext string,
	batchSize, start, end int,
) ([]string, error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	var out []string
	for i := start; i < end; i += batchSize {
		chunkEnd := i + batchSize
		if chunkEnd > end {
			chunkEnd = end
		}
		batch := texts[i:chunkEnd]

		content, err := sendChunk(ctx, client, batch, sourceLanguage, targetLanguage, mediaContext)
		if err != nil {
			return nil, fmt.Errorf("translating lines %d-%d: %w", i+1, chunkEnd, err)
		}

		translations, parseErr := ParseNumberedResponse(content)
		if parseErr != nil && batchSize > 1 {
			return nil, fmt.Errorf("translating lines %d-%d: %w", i+1, chunkEnd, parseErr)
		}

		if len(translations) != len(batch) {
			if batchSize <= 1 {
				log.Warn("translation count mismatch for line %d accepted without further retry (got %d, want 1)", i+1, len(translations))
				translations = reconcileSingle(translations, batch[0])
			} else {
				log.Error("translation count mismatch for lines %d-%d (got %d, want %d), retrying with batch size %d", i+1, chunkEnd, len(translations), len(batch), batchSize/2)
				retried, err := batchTranslateRange(ctx, client, texts, sourceLanguage, targetLanguage, mediaContext, batchSize/2, i, chunkEnd)
				if err != nil {
					return nil, err
				}
				translations = retried
			}
		}

		out = append(out, translations...)
	}
	return out, nil
}

func sendChunk(ctx context.Context, client Client, batch []string, sourceLanguage, targetLanguage, mediaContext string) (string, error) {
	systemPrompt := SystemPromptFor(sourceLanguage, targetLanguage, mediaContext)
	userPrompt := BuildNumberedPrompt(batch)
	return client.Translate(ctx, systemPrompt, userPrompt)
}

// reconcileSingle accepts a single-line batch that didn't come back as
// exactly one line: it keeps the first returned line, or falls back to
// the source text untranslated when nothing came back.
func reconcileSingle(got []string, original string) []string {
	if len(got) == 0 {
		return []string{original}
	}
	return []string{got[0]}
}
