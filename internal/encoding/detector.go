// Package encoding converts raw remote bytes of unknown locale into text.
// Detection is heuristic: candidate decoders are ranked by how clean their
// output looks, with a per-stream memory of the last encoding that worked.
package encoding

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

const (
	// Decodes with more than this share of replacement runes are rejected.
	maxReplacementRatio = 0.10
	// A candidate scoring above this wins immediately.
	shortCircuitConfidence = 0.90
	// Candidates below this floor never win; the caller falls back to UTF-8.
	minConfidence = 0.50
)

type candidate struct {
	name string
	enc  encoding.Encoding
	cjk  bool
}

// Fixed priority order. GB2312 is decoded with the GBK tables: GBK is a
// strict superset and x/text ships no separate EUC-style GB2312 decoder.
var candidates = []candidate{
	{"utf-8", unicode.UTF8, false},
	{"gb18030", simplifiedchinese.GB18030, true},
	{"gbk", simplifiedchinese.GBK, true},
	{"gb2312", simplifiedchinese.GBK, true},
	{"big5", traditionalchinese.Big5, true},
	{"shift_jis", japanese.ShiftJIS, true},
	{"latin-1", charmap.ISO8859_1, false},
}

func candidateFor(name string) (candidate, bool) {
	name = NormalizeName(name)
	for _, c := range candidates {
		if c.name == name {
			return c, true
		}
	}
	return candidate{}, false
}

// NormalizeName maps common aliases onto the candidate names above.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "utf8", "utf-8", "ansi_x3.4-1968", "us-ascii", "ascii":
		return "utf-8"
	case "gb-18030", "gb18030":
		return "gb18030"
	case "gbk", "cp936", "windows-936":
		return "gbk"
	case "gb2312", "euc-cn":
		return "gb2312"
	case "big5", "big-5", "cp950":
		return "big5"
	case "shift_jis", "shift-jis", "sjis", "cp932":
		return "shift_jis"
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return "latin-1"
	}
	return name
}

// Detector is safe for concurrent use. The zero value is not usable;
// construct with NewDetector.
type Detector struct {
	mu       sync.Mutex
	lastGood map[string]string
}

func NewDetector() *Detector {
	return &Detector{
		lastGood: map[string]string{},
	}
}

// Decode converts data to text. preferred, when non-empty, is tried before
// the fixed candidate order. The returned name is the encoding actually used.
func (d *Detector) Decode(data []byte, preferred string) (string, string) {
	return d.decode(data, preferred, "")
}

// DecodeStream behaves like Decode but remembers, per stream key, the last
// encoding that produced a clean result and retries it first on subsequent
// chunks. This keeps one noisy chunk from flipping a session's encoding
// back and forth.
func (d *Detector) DecodeStream(streamKey string, data []byte, preferred string) (string, string) {
	d.mu.Lock()
	remembered := d.lastGood[streamKey]
	d.mu.Unlock()

	text, used := d.decode(data, preferred, remembered)

	d.mu.Lock()
	d.lastGood[streamKey] = used
	d.mu.Unlock()

	return text, used
}

// ForgetStream drops the per-stream memory, e.g. when a session closes.
func (d *Detector) ForgetStream(streamKey string) {
	d.mu.Lock()
	delete(d.lastGood, streamKey)
	d.mu.Unlock()
}

func (d *Detector) decode(data []byte, preferred, remembered string) (string, string) {
	if len(data) == 0 {
		if preferred != "" {
			return "", NormalizeName(preferred)
		}
		return "", "utf-8"
	}

	// A byte-order mark settles the question unconditionally.
	if text, name, ok := decodeBOM(data); ok {
		return text, name
	}

	var (
		bestText  string
		bestName  string
		bestScore = -1.0
	)

	tried := map[string]bool{}

	try := func(c candidate) (string, bool) {
		if tried[c.name] {
			return "", false
		}
		tried[c.name] = true

		text, ok := decodeWith(c.enc, data)
		if !ok {
			return "", false
		}

		score := confidence(text, c.cjk)
		if score < 0 {
			return "", false
		}

		if score > bestScore {
			bestText, bestName, bestScore = text, c.name, score
		}

		return text, score > shortCircuitConfidence
	}

	for _, name := range []string{preferred, remembered} {
		if name == "" {
			continue
		}
		if c, ok := candidateFor(name); ok {
			if text, win := try(c); win {
				return text, c.name
			}
		}
	}

	for _, c := range candidates {
		if text, win := try(c); win {
			return text, c.name
		}
	}

	if bestScore >= minConfidence {
		return bestText, bestName
	}

	// Nothing plausible: lossy UTF-8 keeps the output printable.
	text, _ := decodeWith(unicode.UTF8, data)
	return text, "utf-8"
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

func decodeBOM(data []byte) (string, string, bool) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		text, _ := decodeWith(unicode.UTF8, data[len(bomUTF8):])
		return text, "utf-8", true
	case bytes.HasPrefix(data, bomUTF16BE):
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
		text, _ := decodeWith(enc, data)
		return text, "utf-16be", true
	case bytes.HasPrefix(data, bomUTF16LE):
		enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
		text, _ := decodeWith(enc, data)
		return text, "utf-16le", true
	}
	return "", "", false
}

func decodeWith(enc encoding.Encoding, data []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// confidence scores a decoded text in [0,1], or returns -1 to reject it.
// Replacement runes dominate the score; C1 control characters count as
// damage too, since they are the typical residue of a CJK stream forced
// through a single-byte decoder.
func confidence(text string, cjk bool) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 1.0
	}

	bad := 0
	punct := false
	for _, r := range text {
		switch {
		case r == utf8.RuneError:
			bad++
		case r >= 0x80 && r <= 0x9F:
			bad++
		case isCJKPunct(r):
			punct = true
		}
	}

	ratio := float64(bad) / float64(total)
	if ratio > maxReplacementRatio {
		return -1
	}

	score := 1.0 - ratio*5
	if score < 0 {
		score = 0
	}
	if punct {
		score += 0.05
	}
	if cjk && hasCJK(text) {
		score += 0.03
	}
	if score > 1 {
		score = 1
	}
	return score
}

func isCJKPunct(r rune) bool {
	switch r {
	case '，', '。', '！', '？', '；', '：', '、', '（', '）', '【', '】', '「', '」', '《', '》':
		return true
	}
	return false
}

func hasCJK(text string) bool {
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

var defaultDetector = NewDetector()

// SmartDecode is the package-level convenience over a shared detector.
func SmartDecode(data []byte, preferred string) (string, string) {
	return defaultDetector.Decode(data, preferred)
}
