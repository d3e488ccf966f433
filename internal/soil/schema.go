package soil

// schema defines the Soil tables: the immutable fact timeline, the
// structural relation graph, and the keyword search index that backs
// search coverage levels. One schema const per database file.
const schema = `
CREATE TABLE IF NOT EXISTS facts (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    realized_at INTEGER NOT NULL,
    canonical_at INTEGER NOT NULL,
    integrity_hash TEXT NOT NULL,
    fidelity TEXT NOT NULL DEFAULT 'full',
    superseded_by TEXT,
    superseded_at INTEGER,
    fossilized_at INTEGER,
    data TEXT NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_facts_type ON facts(type);
CREATE INDEX IF NOT EXISTS idx_facts_superseded ON facts(superseded_by);
CREATE INDEX IF NOT EXISTS idx_facts_fidelity ON facts(fidelity);
CREATE INDEX IF NOT EXISTS idx_facts_realized ON facts(realized_at);

CREATE TABLE IF NOT EXISTS system_relations (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    source_id TEXT NOT NULL,
    source_type TEXT NOT NULL,
    target_id TEXT NOT NULL,
    target_type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    evidence TEXT,
    metadata TEXT,
    UNIQUE(kind, source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_sysrel_source ON system_relations(source_id);
CREATE INDEX IF NOT EXISTS idx_sysrel_target ON system_relations(target_id);
CREATE INDEX IF NOT EXISTS idx_sysrel_kind ON system_relations(kind);

-- fact_terms is the keyword index used by search's names/content/full
-- coverage levels: one row per (fact, indexed term, coverage level).
CREATE TABLE IF NOT EXISTS fact_terms (
    fact_id TEXT NOT NULL,
    term TEXT NOT NULL,
    coverage TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fact_terms_term ON fact_terms(term);
CREATE INDEX IF NOT EXISTS idx_fact_terms_fact ON fact_terms(fact_id);

-- fact_vector_ids maps a fact to the vec0 virtual table's integer rowid,
-- since vec0 addresses rows by rowid rather than our TEXT fact ids.
CREATE TABLE IF NOT EXISTS fact_vector_ids (
    fact_id TEXT PRIMARY KEY,
    vec_rowid INTEGER NOT NULL UNIQUE
);

-- fact_vectors holds a hashed bag-of-words embedding per fact's full-
-- coverage text, giving deep-effort search a nearest-neighbor fallback
-- once exact-term and substring matching are exhausted.
CREATE VIRTUAL TABLE IF NOT EXISTS fact_vectors USING vec0(embedding float[32]);
`
