// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

const minTokenRunes = 3

// stopWords is the English stop list applied before bigrams are formed.
var stopWords = func() map[string]bool {
	const list = `a about above across after afterwards again against all almost alone along
already also although always am among amongst an and another any anyhow anyone anything
anyway anywhere are around as at back be became because become becomes becoming been before
beforehand behind being below beside besides between beyond both but by can cannot could
did do does doing done down due during each either else elsewhere enough etc even ever every
everyone everything everywhere except few for former formerly from further get give go had
has have having he hence her here hereafter hereby herein hers herself him himself his how
however i if in indeed into is it its itself just keep last latter latterly least less made
many may me meanwhile might mine more moreover most mostly much must my myself namely neither
never nevertheless next no nobody none noone nor not nothing now nowhere of off often on once
one only onto or other others otherwise our ours ourselves out over own per perhaps please
put rather re same see seem seemed seeming seems several she should since so some somehow
someone something sometime sometimes somewhere still such than that the their theirs them
themselves then thence there thereafter thereby therefore therein thereupon these they this
those though through throughout thru thus to together too toward towards under until up upon
us very via was we well were what whatever when whence whenever where whereafter whereas
whereby wherein whereupon wherever whether which while whither who whoever whole whom whose
why will with within without would yet you your yours yourself yourselves`
	words := make(map[string]bool)
	for _, w := range strings.Fields(list) {
		words[w] = true
	}
	return words
}()

// tokenize lowercases content, splits it on anything that is not a letter
// or digit, drops stop words and short tokens, and optionally appends the
// bigrams of the surviving tokens.
func tokenize(content string, bigrams bool) []string {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	unigrams := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenRunes || stopWords[f] {
			continue
		}
		unigrams = append(unigrams, f)
	}
	if !bigrams || len(unigrams) < 2 {
		return unigrams
	}

	terms := make([]string, 0, 2*len(unigrams)-1)
	terms = append(terms, unigrams...)
	for i := 1; i < len(unigrams); i++ {
		terms = append(terms, unigrams[i-1]+" "+unigrams[i])
	}
	return terms
}

// tokenCache memoizes tokenize by content hash. It is safe for
// concurrent use.
type tokenCache struct {
	bigrams bool
	cache   *lru.Cache[string, []string]
}

func newTokenCache(size int, bigrams bool) (*tokenCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &tokenCache{bigrams: bigrams, cache: c}, nil
}

func (c *tokenCache) tokens(content string) []string {
	sum := sha256.Sum256([]byte(content))
	key := hex.EncodeToString(sum[:])
	if terms, ok := c.cache.Get(key); ok {
		return terms
	}
	terms := tokenize(content, c.bigrams)
	c.cache.Add(key, terms)
	return terms
}
