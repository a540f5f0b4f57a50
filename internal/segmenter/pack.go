package segmenter

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

const breakChars = "-_./"

// piece is a raw chunk before the minimum-size filter.
type piece struct {
	text      string
	overlap   int // runes at the start repeated from the previous piece, separator included
	truncated bool
}

// builder accumulates space-joined text and its rune length.
type builder struct {
	sb      strings.Builder
	size    int
	overlap int
	own     bool // holds text beyond the overlap prefix
}

func (b *builder) seed(carry string) {
	b.reset()
	if carry == "" {
		return
	}
	b.sb.WriteString(carry)
	b.size = runeLen(carry)
	b.overlap = b.size + 1
}

func (b *builder) add(s string, n int, own bool) {
	if b.size > 0 {
		b.sb.WriteByte(' ')
		b.size++
	}
	b.sb.WriteString(s)
	b.size += n
	if own {
		b.own = true
	} else {
		b.overlap = b.size + 1
	}
}

func (b *builder) reset() {
	b.sb.Reset()
	b.size = 0
	b.overlap = 0
	b.own = false
}

func (b *builder) piece() piece {
	return piece{text: b.sb.String(), overlap: b.overlap}
}

// packer holds per-call state. One packer per Segment call.
type packer struct {
	cfg      Config
	logger   *zap.Logger
	filename string

	sentences  []string
	lens       []int
	out        []piece
	iterations int
	hardCuts   int
}

func newPacker(cfg Config, logger *zap.Logger, filename string, sentences []string) *packer {
	lens := make([]int, len(sentences))
	for i, s := range sentences {
		lens[i] = runeLen(s)
	}
	return &packer{cfg: cfg, logger: logger, filename: filename, sentences: sentences, lens: lens}
}

// fits is the greedy packing condition: len(chunk) + len(next) + 1 <= chunkSize.
func (p *packer) fits(size, next int) bool {
	return size+next+1 <= p.cfg.ChunkSize
}

// run packs sentences greedily. The cursor never returns to or before the start of
// the chunk just emitted, so the loop ends within len(sentences) iterations. The
// 3n bound only fires if that guarantee is broken.
func (p *packer) run() ([]piece, error) {
	n := len(p.sentences)
	limit := 3 * n

	var (
		b         builder
		carry     string
		repeatTil int // sentences before this index were already emitted
		iters     int
	)

	for i := 0; i < n; {
		iters++
		if iters > limit {
			p.logger.Error("Segmentation exceeded iteration bound",
				zap.String("filename", p.filename),
				zap.Int("iterations", iters),
				zap.Int("sentence_index", i),
				zap.Int("sentences", n),
				zap.Int("chunks", len(p.out)),
			)
			return nil, domain.NewInvariantError(iters, limit, n)
		}

		start := i
		b.seed(carry)
		if carry != "" && !p.fits(b.size, p.lens[i]) {
			b.reset()
		}

		for i < n && p.fits(b.size, p.lens[i]) {
			b.add(p.sentences[i], p.lens[i], i >= repeatTil)
			i++
		}

		if !b.own {
			// Even the first sentence does not fit on its own.
			p.splitOversized(p.sentences[i], carry)
			i++
			repeatTil = i
			carry = p.nextCarry()
			continue
		}

		p.out = append(p.out, b.piece())
		end := i
		repeatTil = end
		carry = ""
		if i >= n {
			break
		}

		if next := p.rewind(start, end); next < end {
			i = next
			continue
		}
		carry = p.nextCarry()
	}

	p.iterations = iters
	return p.out, nil
}

// rewind walks back from the last consumed sentence collecting whole sentences up to
// overlapSize characters and returns where the next chunk should start. The rewind
// is min(2, words/10) sentences, and only if the repeated sentences leave room for the
// next new one. The result is always greater than start.
func (p *packer) rewind(start, end int) int {
	collected, count, words := 0, 0, 0
	for j := end - 1; j >= start; j-- {
		add := p.lens[j]
		if count > 0 {
			add++
		}
		if collected+add > p.cfg.OverlapSize {
			break
		}
		collected += add
		count++
		words += wordCount(p.sentences[j])
	}

	back := min(2, words/10, count)
	if back == 0 {
		return end
	}

	repeated := 0
	for j := end - back; j < end; j++ {
		if repeated > 0 {
			repeated++
		}
		repeated += p.lens[j]
	}
	if !p.fits(repeated, p.lens[end]) {
		return end
	}

	next := max(start, end-back)
	if next <= start {
		next = start + 1
	}
	return next
}

// nextCarry is the word-aligned tail of the last emitted piece, used when no whole
// sentence can be repeated.
func (p *packer) nextCarry() string {
	if len(p.out) == 0 {
		return ""
	}
	last := p.out[len(p.out)-1]
	if last.truncated {
		return ""
	}
	return tailWords(last.text, p.cfg.OverlapSize)
}

// splitOversized cuts a sentence longer than chunkSize into word-bounded pieces.
func (p *packer) splitOversized(sentence, carry string) {
	words := strings.Fields(sentence)
	var b builder
	b.seed(carry)

	for wi := 0; wi < len(words); {
		w := words[wi]
		wl := runeLen(w)

		sep := 0
		if b.size > 0 {
			sep = 1
		}
		if b.size+sep+wl <= p.cfg.ChunkSize {
			b.add(w, wl, true)
			wi++
			continue
		}
		if b.own {
			p.out = append(p.out, b.piece())
			b.seed(p.nextCarry())
			continue
		}
		if b.size > 0 {
			b.reset()
			continue
		}

		head, rest, ok := p.splitWord(w)
		if !ok {
			p.hardCut(w)
			wi++
			continue
		}
		p.out = append(p.out, piece{text: head})
		words[wi] = rest
	}

	if b.own {
		p.out = append(p.out, b.piece())
	}
}

// splitWord cuts a word longer than chunkSize after the last break character inside
// the limit. Heads shorter than minChunkSize are rejected.
func (p *packer) splitWord(w string) (head, rest string, ok bool) {
	window := prefixRunes(w, p.cfg.ChunkSize)
	at := strings.LastIndexAny(window, breakChars)
	if at < 0 {
		return "", "", false
	}
	head = window[:at+1]
	if runeLen(head) < p.cfg.MinChunkSize {
		return "", "", false
	}
	return head, w[at+1:], true
}

// hardCut keeps the first chunkSize characters of an unbreakable word and drops the rest.
func (p *packer) hardCut(w string) {
	head := prefixRunes(w, p.cfg.ChunkSize)
	dropped := runeLen(w) - p.cfg.ChunkSize

	preview := prefixRunes(w, 50)
	p.logger.Warn("Hard-cut unbreakable word at character limit",
		zap.String("filename", p.filename),
		zap.String("word_preview", preview),
		zap.Int("chunk_size", p.cfg.ChunkSize),
		zap.Int("dropped_chars", dropped),
	)
	p.out = append(p.out, piece{text: head, truncated: true})
	p.hardCuts++
	metrics.SegmenterHardCutsTotal.Inc()
}
