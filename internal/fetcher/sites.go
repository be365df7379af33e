package fetcher

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Site describes how one source renders its chapter navigation. The
// fetch pipeline never branches on the host; it only consults this
// table. New sites are added here, not in the pipeline.
type Site struct {
	ID        string
	Hosts     []string
	PrevTexts []string
	NextTexts []string
}

var genericSite = Site{
	ID:        "generic",
	PrevTexts: []string{"上一章", "上一页", "上一頁", "Previous", "Prev"},
	NextTexts: []string{"下一章", "下一页", "下一頁", "Next"},
}

var sites = []Site{
	{
		ID:        "qidian",
		Hosts:     []string{"qidian.com"},
		PrevTexts: []string{"上一章"},
		NextTexts: []string{"下一章"},
	},
	{
		ID:        "syosetu",
		Hosts:     []string{"syosetu.com"},
		PrevTexts: []string{"前へ"},
		NextTexts: []string{"次へ"},
	},
}

// SiteFor matches a host against the table, falling back to the
// generic link-text patterns.
func SiteFor(host string) Site {
	host = strings.ToLower(host)
	for _, s := range sites {
		for _, h := range s.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return s
			}
		}
	}
	return genericSite
}

// navLinksJS builds the in-page expression that resolves the site's
// prev/next anchors to absolute hrefs.
func navLinksJS(s Site) string {
	prev, _ := json.Marshal(s.PrevTexts)
	next, _ := json.Marshal(s.NextTexts)
	return fmt.Sprintf(`(() => {
  const find = (pats) => {
    for (const a of document.querySelectorAll('a[href]')) {
      const t = (a.textContent || '').trim();
      if (t && pats.some(p => t.includes(p))) return a.href;
    }
    return '';
  };
  return { prev: find(%s), next: find(%s) };
})()`, prev, next)
}
