package zone

import (
	"fmt"
	"regexp"
	"strings"
)

// 文档注释：地址片段提取规则
// 背景：地址按逗号切分后剔除邮编、州/国家等行政层级，剩余首段视为片区名；规则随地区不同而不同，因此可注入。
// 约束：DropPatterns 为正则（匹配任一即剔除）；RegionNames 大小写不敏感整段匹配；CountryWords 大小写不敏感包含匹配。
type AreaNamerConfig struct {
	DropPatterns []string
	RegionNames  []string
	CountryWords []string
}

type AreaNamer struct {
	drop      []*regexp.Regexp
	regions   map[string]struct{}
	countries []string
}

// PostalCodePattern 整段为五位邮编；"47300 Petaling Jaya"、"Lot 12345" 这类混合片段保留
const PostalCodePattern = `^\d{5}$`

var malaysiaRegions = []string{
	"Johor", "Kedah", "Kelantan", "Melaka", "Malacca", "Negeri Sembilan", "Pahang",
	"Perak", "Perlis", "Pulau Pinang", "Penang", "Sabah", "Sarawak", "Selangor",
	"Terengganu", "Wilayah Persekutuan", "Wilayah Persekutuan Kuala Lumpur",
	"Federal Territory of Kuala Lumpur", "Wilayah Persekutuan Putrajaya",
	"Wilayah Persekutuan Labuan", "Selangor Darul Ehsan", "Johor Darul Ta'zim",
}

// MalaysiaAreaNamer 默认规则（马来西亚地址习惯）
func MalaysiaAreaNamer() *AreaNamer {
	n, _ := NewAreaNamer(AreaNamerConfig{
		DropPatterns: []string{PostalCodePattern},
		RegionNames:  malaysiaRegions,
		CountryWords: []string{"malaysia"},
	})
	return n
}

func NewAreaNamer(cfg AreaNamerConfig) (*AreaNamer, error) {
	n := &AreaNamer{regions: make(map[string]struct{}, len(cfg.RegionNames))}
	for _, p := range cfg.DropPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("area pattern %q: %w", p, err)
		}
		n.drop = append(n.drop, re)
	}
	for _, r := range cfg.RegionNames {
		if r = strings.TrimSpace(r); r != "" {
			n.regions[strings.ToLower(r)] = struct{}{}
		}
	}
	for _, c := range cfg.CountryWords {
		if c = strings.TrimSpace(c); c != "" {
			n.countries = append(n.countries, strings.ToLower(c))
		}
	}
	return n, nil
}

// Token：地址中首个未被剔除的片段；无可用片段返回空串
func (n *AreaNamer) Token(address string) string {
	for _, part := range strings.Split(address, ",") {
		tok := strings.TrimSpace(part)
		if tok == "" || n.dropped(tok) {
			continue
		}
		return tok
	}
	return ""
}

func (n *AreaNamer) dropped(tok string) bool {
	for _, re := range n.drop {
		if re.MatchString(tok) {
			return true
		}
	}
	low := strings.ToLower(tok)
	if _, ok := n.regions[low]; ok {
		return true
	}
	for _, c := range n.countries {
		if strings.Contains(low, c) {
			return true
		}
	}
	return false
}

// Name：成员片段多数票；并列取最先出现者；全部为空返回空串
func (n *AreaNamer) Name(places []Place) string {
	counts := make(map[string]int)
	var order []string
	for _, p := range places {
		tok := n.Token(p.Address)
		if tok == "" {
			continue
		}
		if _, seen := counts[tok]; !seen {
			order = append(order, tok)
		}
		counts[tok]++
	}
	best, bestN := "", 0
	for _, tok := range order {
		if counts[tok] > bestN {
			best, bestN = tok, counts[tok]
		}
	}
	return best
}
