package soil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/derekparker/trie/v3"
	"github.com/orsinium-labs/stopwords"

	"github.com/memogarden/memogarden/internal/contoken"
	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
	"github.com/memogarden/memogarden/pkg/pool"
)

// vectorDims is the width of the hashed bag-of-words embedding stored per
// fact in the fact_vectors vec0 table (schema.go). deepScan's
// nearest-neighbor fallback (vectorKNN below).
const vectorDims = 32

// vectorKNN bounds how many nearest neighbors deepScan pulls from
// fact_vectors per query.
const vectorKNN = 20

// hashEmbed builds a crude fixed-width embedding for terms by hashing each
// term into one of vectorDims buckets and L2-normalizing the counts. It is
// not a semantic embedding; it gives deep-effort search a token
// co-occurrence fallback over sqlite-vec's nearest-neighbor search without
// depending on an external embedding model.
func hashEmbed(terms []string) []float32 {
	v := make([]float32, vectorDims)
	for _, t := range terms {
		h := fnv.New32a()
		h.Write([]byte(t))
		v[h.Sum32()%uint32(vectorDims)]++
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// encodeVector renders v as the JSON array text sqlite-vec accepts for a
// float[N] column.
func encodeVector(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', 6, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var enStopwords = stopwords.MustGet("en")

// nameFields and contentFields list the Data/Metadata keys folded into the
// "names" and "content" coverage levels respectively. Anything else
// textual only counts under "full".
var nameFields = map[string]bool{"title": true, "name": true, "subject": true, "label": true}
var contentFields = map[string]bool{"description": true, "content": true, "body": true, "text": true}

// canonicalizeForMatch folds text to a normalized, matchable form: lowercase,
// letters/digits/joiners preserved, smart quotes and dashes folded to
// their ASCII forms, everything else collapsed to a single space.
func canonicalizeForMatch(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '\'' || c == '-' || c == '_' {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimSpace(out.String())
}

// tokenize splits text into lowercase terms, dropping English stopwords.
func tokenize(text string) []string {
	canon := canonicalizeForMatch(text)
	if canon == "" {
		return nil
	}
	fields := strings.Fields(canon)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || enStopwords.Contains(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// walkStrings collects every string leaf in a decoded JSON value.
func walkStrings(v any, into *[]string) {
	switch val := v.(type) {
	case string:
		*into = append(*into, val)
	case map[string]any:
		for _, e := range val {
			walkStrings(e, into)
		}
	case []any:
		for _, e := range val {
			walkStrings(e, into)
		}
	}
}

// coverageText builds the text blob indexed for each coverage level:
// names (type tag and title-equivalents) is a strict subset of content
// (names plus body text), which is a strict subset of full (all indexed
// textual fields including metadata).
func coverageText(f *Fact) map[Coverage]string {
	var decoded map[string]any
	_ = json.Unmarshal(f.Data, &decoded)
	var metaDecoded map[string]any
	_ = json.Unmarshal(f.Metadata, &metaDecoded)

	var names, content []string
	names = append(names, string(f.Type))
	for k, v := range decoded {
		if s, ok := v.(string); ok {
			if nameFields[k] {
				names = append(names, s)
			} else if contentFields[k] {
				content = append(content, s)
			}
		}
	}

	var full []string
	walkStrings(map[string]any(decoded), &full)
	walkStrings(map[string]any(metaDecoded), &full)

	return map[Coverage]string{
		CoverageNames:   strings.Join(names, " "),
		CoverageContent: strings.Join(append(append([]string{}, names...), content...), " "),
		CoverageFull:    strings.Join(append(append([]string{}, names...), append(content, full...)...), " "),
	}
}

func indexFactTermsTx(tx *sql.Tx, f *Fact) error {
	texts := coverageText(f)
	seen := make(map[string]bool)
	for _, cov := range []Coverage{CoverageNames, CoverageContent, CoverageFull} {
		for _, term := range tokenize(texts[cov]) {
			key := string(cov) + "|" + term
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, err := tx.Exec(`INSERT INTO fact_terms (fact_id, term, coverage) VALUES (?, ?, ?)`,
				f.ID, term, string(cov)); err != nil {
				return fmt.Errorf("soil: index fact terms: %w", err)
			}
		}
	}

	if fullTerms := tokenize(texts[CoverageFull]); len(fullTerms) > 0 {
		var rowid int64
		if err := tx.QueryRow(`SELECT COALESCE(MAX(vec_rowid), 0) + 1 FROM fact_vector_ids`).Scan(&rowid); err != nil {
			return fmt.Errorf("soil: next vector rowid: %w", err)
		}
		vec := encodeVector(hashEmbed(fullTerms))
		if _, err := tx.Exec(`INSERT INTO fact_vector_ids (fact_id, vec_rowid) VALUES (?, ?)`, f.ID, rowid); err != nil {
			return fmt.Errorf("soil: index fact vector id: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO fact_vectors (rowid, embedding) VALUES (?, ?)`, rowid, vec); err != nil {
			return fmt.Errorf("soil: index fact vector: %w", err)
		}
	}
	return nil
}

// quickCache memoizes recent search result id-lists keyed on
// "coverage|type|query", giving the "quick" effort mode its cached
// behavior without re-running the indexed query on repeat searches.
// The keys live in a trie rather than a plain map so a cache miss on an
// exact key can still fall back to the broadest previously-cached prefix
// (e.g. a quick re-search after the caller typed one more word reuses the
// shorter query's candidate set instead of hitting the index cold).
// Bounded to quickCacheCap entries, evicted oldest-first.
const quickCacheCap = 256

type quickCache struct {
	mu    sync.Mutex
	order []string
	t     *trie.Trie[[]string]
}

func newQuickCache() *quickCache {
	return &quickCache{t: trie.New[[]string]()}
}

func (c *quickCache) get(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.t.Find(key); ok {
		return node.Val(), true
	}
	return c.prefixFallback(key)
}

// prefixFallback looks for the longest previously-cached key that is a
// prefix of the miss, so a quick lookup for "memo garden plan" can still
// reuse the candidate set cached under "memo garden" rather than falling
// through to a cold index scan.
func (c *quickCache) prefixFallback(key string) ([]string, bool) {
	var best string
	for _, k := range c.t.Keys() {
		if len(k) <= len(best) {
			continue
		}
		if strings.HasPrefix(key, k) {
			best = k
		}
	}
	if best == "" {
		return nil, false
	}
	node, ok := c.t.Find(best)
	if !ok {
		return nil, false
	}
	return node.Val(), true
}

func (c *quickCache) put(key string, factIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.t.Find(key); !exists {
		c.order = append(c.order, key)
		if len(c.order) > quickCacheCap {
			oldest := c.order[0]
			c.order = c.order[1:]
			c.t.Remove(oldest)
		}
	}
	c.t.Add(key, factIDs)
}

var globalQuickCache = newQuickCache()

// SearchFacts implements the `search` verb's Soil half: coverage selects
// which indexed fields are matched, effort
// selects quick (cached)/standard (indexed)/deep (exhaustive + vector
// fallback) behavior.
func (s *Store) SearchFacts(query string, coverage Coverage, effort Effort, targetType FactType, limit int, cursor string) ([]*Fact, string, error) {
	if limit <= 0 {
		limit = 20
	}
	offset := int64(0)
	if cursor != "" {
		c, err := contoken.Decode("soil.search", cursor)
		if err != nil {
			return nil, "", memerr.Validation("cursor", err.Error())
		}
		offset = c
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, "", nil
	}

	cacheKey := string(coverage) + "|" + string(targetType) + "|" + strings.Join(terms, " ")
	var candidateIDs []string
	if effort == EffortQuick {
		if cached, ok := globalQuickCache.get(cacheKey); ok {
			candidateIDs = cached
		}
	}

	if candidateIDs == nil {
		ids, err := s.matchTerms(terms, coverage, targetType)
		if err != nil {
			return nil, "", err
		}
		if effort == EffortDeep {
			extra, err := s.deepScan(terms, coverage, targetType)
			if err != nil {
				return nil, "", err
			}
			ids = mergeUnique(ids, extra)
		}
		candidateIDs = ids
		globalQuickCache.put(cacheKey, ids)
	}

	end := offset + int64(limit)
	if end > int64(len(candidateIDs)) {
		end = int64(len(candidateIDs))
	}
	var page []string
	if offset < int64(len(candidateIDs)) {
		page = candidateIDs[offset:end]
	}

	facts := make([]*Fact, 0, len(page))
	for _, id := range page {
		f, err := s.GetFact(id)
		if err != nil {
			continue
		}
		facts = append(facts, f)
	}

	var next string
	if end < int64(len(candidateIDs)) {
		next = contoken.Encode("soil.search", end)
	}
	return facts, next, nil
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, x := range a {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	for _, x := range b {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func (s *Store) matchTerms(terms []string, coverage Coverage, targetType FactType) ([]string, error) {
	// The argument slice is rebuilt for every search, so it draws from the
	// shared scratch pool; the deferred closure re-reads fullArgs in case
	// an append grew it past the pooled capacity.
	fullArgs := pool.GetSlice()
	defer func() { pool.PutSlice(fullArgs) }()

	placeholders := make([]string, len(terms))
	fullArgs = append(fullArgs, string(coverage))
	for i, t := range terms {
		placeholders[i] = "?"
		fullArgs = append(fullArgs, t)
	}
	query := fmt.Sprintf(`
		SELECT ft.fact_id, COUNT(DISTINCT ft.term) AS hits
		FROM fact_terms ft
		JOIN facts f ON f.id = ft.fact_id
		WHERE ft.coverage = ? AND ft.term IN (%s)`, strings.Join(placeholders, ","))
	if targetType != "" {
		query += ` AND f.type = ?`
		fullArgs = append(fullArgs, string(targetType))
	}
	query += ` GROUP BY ft.fact_id ORDER BY hits DESC, ft.fact_id`

	s.mu.RLock()
	rows, err := s.db.Query(query, fullArgs...)
	s.mu.RUnlock()
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		var hits int
		if err := rows.Scan(&id, &hits); err != nil {
			return nil, memerr.Internal(ids.DiagnosticID(), err)
		}
		out = append(out, id)
	}
	return out, nil
}

// deepScan runs an Aho-Corasick sweep over every indexed term at the given
// coverage level, catching substring/compound matches the exact-term index
// misses (spec: "deep may scan exhaustively"). It is the fallback that
// keeps search usable over facts whose fidelity has degraded past the point
// their original text is still directly queryable.
func (s *Store) deepScan(terms []string, coverage Coverage, targetType FactType) ([]string, error) {
	s.mu.RLock()
	rows, err := s.db.Query(`SELECT DISTINCT fact_id, term FROM fact_terms WHERE coverage = ?`, string(coverage))
	s.mu.RUnlock()
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}
	defer rows.Close()

	type termRow struct{ factID, term string }
	var all []termRow
	for rows.Next() {
		var tr termRow
		if err := rows.Scan(&tr.factID, &tr.term); err != nil {
			return nil, memerr.Internal(ids.DiagnosticID(), err)
		}
		all = append(all, tr)
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(terms).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, memerr.Internal(ids.DiagnosticID(), err)
	}

	seen := make(map[string]bool)
	var out []string
	for _, tr := range all {
		if len(automaton.FindAllOverlapping([]byte(tr.term))) == 0 {
			continue
		}
		if seen[tr.factID] {
			continue
		}
		seen[tr.factID] = true
		out = append(out, tr.factID)
	}

	// Nearest-neighbor fallback over the hashed bag-of-words embeddings in
	// fact_vectors, for facts whose exact terms drifted past what the
	// keyword index and Aho-Corasick sweep above can still catch (e.g.
	// after fidelity degradation summarized away the original wording).
	// Best-effort: a query failure here just means no extra candidates,
	// not a search failure.
	query := encodeVector(hashEmbed(terms))
	s.mu.RLock()
	vrows, verr := s.db.Query(`
		SELECT fvi.fact_id
		FROM fact_vectors fv
		JOIN fact_vector_ids fvi ON fvi.vec_rowid = fv.rowid
		WHERE fv.embedding MATCH ? AND k = ?
		ORDER BY fv.distance`, query, vectorKNN)
	s.mu.RUnlock()
	if verr == nil {
		defer vrows.Close()
		for vrows.Next() {
			var factID string
			if err := vrows.Scan(&factID); err != nil {
				continue
			}
			if targetType != "" {
				if f, err := s.GetFact(factID); err != nil || f.Type != targetType {
					continue
				}
			}
			if !seen[factID] {
				seen[factID] = true
				out = append(out, factID)
			}
		}
	}
	return out, nil
}
