package signal

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	logx "signalbot/pkg/logx"
)

// Catalog maps pair and direction to a signal image on disk.
type Catalog struct {
	dir    string
	images map[string]map[Direction]string
}

// LoadCatalog scans dir for *.png files named like "EURUSD BUY.png". A
// missing directory yields an empty catalog.
func LoadCatalog(dir string, log logx.Logger) *Catalog {
	c := &Catalog{dir: dir, images: map[string]map[Direction]string{}}
	if dir == "" {
		return c
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		log.Warn("signal image scan failed", logx.String("dir", dir), logx.Err(err))
		return c
	}
	for _, p := range paths {
		pair, d, ok := parseImageName(p)
		if !ok {
			continue
		}
		if c.images[pair] == nil {
			c.images[pair] = map[Direction]string{}
		}
		c.images[pair][d] = p
	}
	log.Debug("signal images loaded", logx.String("dir", dir), logx.Int("pairs", len(c.images)))
	return c
}

func parseImageName(path string) (pair string, dir Direction, ok bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, tok := range strings.Fields(stem) {
		up := strings.ToUpper(tok)
		if utf8.RuneCountInString(up) == 6 && strings.IndexFunc(up, func(r rune) bool { return !unicode.IsLetter(r) }) < 0 {
			pair = up
		}
		if up == string(Buy) || up == string(Sell) {
			dir = Direction(up)
		}
	}
	return pair, dir, pair != "" && dir != ""
}

// Lookup returns the image path when one is catalogued and still exists.
func (c *Catalog) Lookup(pair string, dir Direction) (string, bool) {
	if c == nil {
		return "", false
	}
	p, ok := c.images[strings.ToUpper(pair)][Direction(strings.ToUpper(string(dir)))]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, m := range c.images {
		n += len(m)
	}
	return n
}
