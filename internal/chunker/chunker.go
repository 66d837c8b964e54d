package chunker

import (
	"math"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/models"
)

// Chunker splits page text into sentence-aligned, token-bounded,
// overlapping chunks. It is a stateless transformer; the zero value
// counts tokens with the word-count approximation.
type Chunker struct {
	enc *tiktoken.Tiktoken
}

// NewChunker creates a chunker using the cl100k_base encoding when it
// can be loaded, falling back to approximate word-based counting.
func NewChunker() *Chunker {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load tiktoken encoding, using word-count approximation")
		return &Chunker{}
	}
	return &Chunker{enc: enc}
}

// CountTokens counts tokens in text, exactly via tiktoken or
// approximately as word_count * 1.33.
func (c *Chunker) CountTokens(text string) int {
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return int(math.Round(float64(len(strings.Fields(text))) * 1.33))
}

// Chunk splits text into overlapping chunks of at most chunkSize
// tokens, attaching meta to every produced chunk. A single sentence
// longer than chunkSize is kept whole, so such chunks may exceed the
// limit. Empty or whitespace-only text yields no chunks.
func (c *Chunker) Chunk(text string, meta models.ChunkMeta, chunkSize, overlap int) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)
	var chunks []models.Chunk
	var current string
	currentTokens := 0

	for _, sentence := range sentences {
		sentenceTokens := c.CountTokens(sentence)

		if currentTokens+sentenceTokens > chunkSize && current != "" {
			chunks = append(chunks, c.newChunk(current, currentTokens, meta))

			// Seed the next chunk with the overlap tail of the one
			// just closed, then the sentence that triggered rollover.
			current = c.overlapTail(current, overlap) + " " + sentence
			currentTokens = c.CountTokens(current)
		} else {
			if current == "" {
				current = sentence
			} else {
				current += " " + sentence
			}
			currentTokens += sentenceTokens
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, c.newChunk(current, currentTokens, meta))
	}

	return chunks
}

func (c *Chunker) newChunk(text string, tokens int, meta models.ChunkMeta) models.Chunk {
	return models.Chunk{
		Text:       strings.TrimSpace(text),
		Tokens:     tokens,
		Filename:   meta.Filename,
		PageNumber: meta.PageNumber,
		Filepath:   meta.Filepath,
	}
}

// overlapTail returns the longest whole-word suffix of text whose
// token count does not exceed overlapTokens.
func (c *Chunker) overlapTail(text string, overlapTokens int) string {
	if text == "" || overlapTokens <= 0 {
		return ""
	}

	words := strings.Fields(text)
	var tail string
	for i := len(words) - 1; i >= 0; i-- {
		candidate := words[i]
		if tail != "" {
			candidate += " " + tail
		}
		if c.CountTokens(candidate) > overlapTokens {
			break
		}
		tail = candidate
	}
	return tail
}

// splitSentences splits after '.', '!' or '?' followed by whitespace.
// Empty fragments are discarded; a trailing fragment without terminal
// punctuation is kept.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	var b strings.Builder

	for i, r := range runes {
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
