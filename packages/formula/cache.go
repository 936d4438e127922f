package formula

import "sync"

// ASTKey is the normalized string form of a parsed formula. two formulas
// that differ only in whitespace or letter case share a key.
type ASTKey string

type cacheEntry struct {
	ast ASTNode
	err error
}

// FormulaCache memoizes parse results by formula text. failed parses are
// cached too so a broken formula is not re-lexed on every recalculation.
type FormulaCache struct {
	mu       sync.RWMutex
	byText   map[string]cacheEntry
	byKey    map[ASTKey]ASTNode
	capacity int
}

// NewFormulaCache creates a cache holding up to capacity formula texts.
// a non-positive capacity means unbounded.
func NewFormulaCache(capacity int) *FormulaCache {
	return &FormulaCache{
		byText:   make(map[string]cacheEntry),
		byKey:    make(map[ASTKey]ASTNode),
		capacity: capacity,
	}
}

// normalizeAST converts an AST to its normalized string representation
func normalizeAST(ast ASTNode) ASTKey {
	if ast == nil {
		return ""
	}
	return ASTKey(ast.ToString())
}

// Get returns the parsed AST for formula text, parsing it on first use
func (fc *FormulaCache) Get(text string) (ASTNode, error) {
	fc.mu.RLock()
	entry, ok := fc.byText[text]
	fc.mu.RUnlock()
	if ok {
		return entry.ast, entry.err
	}

	ast, err := Parse(text)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.capacity > 0 && len(fc.byText) >= fc.capacity {
		// full reset keeps the bookkeeping trivial
		fc.byText = make(map[string]cacheEntry)
		fc.byKey = make(map[ASTKey]ASTNode)
	}
	if err == nil {
		// share structurally identical trees across spellings
		key := normalizeAST(ast)
		if existing, found := fc.byKey[key]; found {
			ast = existing
		} else {
			fc.byKey[key] = ast
		}
	}
	fc.byText[text] = cacheEntry{ast: ast, err: err}
	return ast, err
}

// Count returns the number of distinct formula texts cached
func (fc *FormulaCache) Count() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.byText)
}

// UniqueCount returns the number of distinct parsed trees
func (fc *FormulaCache) UniqueCount() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.byKey)
}

// Clear removes every cached entry
func (fc *FormulaCache) Clear() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.byText = make(map[string]cacheEntry)
	fc.byKey = make(map[ASTKey]ASTNode)
}
