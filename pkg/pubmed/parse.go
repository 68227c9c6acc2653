package pubmed

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Article 是从 efetch XML 中解析出的一条规范化文献记录。
// PubDate 已规范化为 "YYYY-MM-DD"。
type Article struct {
	PMID         string
	Title        string
	Abstract     string
	PubDate      string
	Journal      string
	Authors      string
	Affiliations string
}

// 英文月份缩写到两位数字的映射
var monthNames = map[string]string{
	"Jan": "01", "Feb": "02", "Mar": "03", "Apr": "04",
	"May": "05", "Jun": "06", "Jul": "07", "Aug": "08",
	"Sep": "09", "Oct": "10", "Nov": "11", "Dec": "12",
}

var yearPattern = regexp.MustCompile(`\d{4}`)

type articleSetXML struct {
	Articles []articleXML `xml:"PubmedArticle"`
}

type articleXML struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Sections []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title        string `xml:"Title"`
				JournalIssue struct {
					PubDate pubDateXML `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			AuthorList struct {
				Authors []authorXML `xml:"Author"`
			} `xml:"AuthorList"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

type pubDateXML struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

type authorXML struct {
	LastName     string   `xml:"LastName"`
	Initials     string   `xml:"Initials"`
	Affiliations []string `xml:"AffiliationInfo>Affiliation"`
}

// ParseArticles 将 efetch 的 XML 响应解析为规范化记录。缺少 PMID 的条目会被丢弃。
// 整个响应无法解析时返回 ErrMalformedResponse。
func ParseArticles(data []byte) ([]Article, error) {
	var set articleSetXML
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	articles := make([]Article, 0, len(set.Articles))
	for _, raw := range set.Articles {
		pmid := strings.TrimSpace(raw.MedlineCitation.PMID)
		if pmid == "" {
			continue
		}

		art := raw.MedlineCitation.Article
		articles = append(articles, Article{
			PMID:         pmid,
			Title:        strings.TrimSpace(art.Title),
			Abstract:     joinSections(art.Abstract.Sections),
			PubDate:      normalizePubDate(art.Journal.JournalIssue.PubDate),
			Journal:      strings.TrimSpace(art.Journal.Title),
			Authors:      formatAuthors(art.AuthorList.Authors),
			Affiliations: collectAffiliations(art.AuthorList.Authors),
		})
	}
	return articles, nil
}

// joinSections 把结构化摘要的多个段落合并为一段文本。
func joinSections(sections []string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// normalizePubDate 将 PubDate 规范化为 "YYYY-MM-DD"。
// 年份缺失时从 MedlineDate 中取第一个四位数字，仍取不到则回退为 "1900"；
// 月份支持数字与英文缩写，取不到回退为 "01"；日缺失回退为 "01"。
func normalizePubDate(d pubDateXML) string {
	year := strings.TrimSpace(d.Year)
	if year == "" {
		year = yearPattern.FindString(d.MedlineDate)
	}
	if year == "" {
		year = "1900"
	}

	month := "01"
	rawMonth := strings.TrimSpace(d.Month)
	if n, err := strconv.Atoi(rawMonth); err == nil && n >= 1 && n <= 12 {
		month = fmt.Sprintf("%02d", n)
	} else if len(rawMonth) >= 3 {
		key := strings.ToUpper(rawMonth[:1]) + strings.ToLower(rawMonth[1:3])
		if m, ok := monthNames[key]; ok {
			month = m
		}
	}

	day := "01"
	if n, err := strconv.Atoi(strings.TrimSpace(d.Day)); err == nil && n >= 1 && n <= 31 {
		day = fmt.Sprintf("%02d", n)
	}

	return fmt.Sprintf("%s-%s-%s", year, month, day)
}

// formatAuthors 产出 "姓 名首字母" 的逗号分隔串，与 PubMed 网页展示一致。
func formatAuthors(authors []authorXML) string {
	parts := make([]string, 0, len(authors))
	for _, a := range authors {
		name := strings.TrimSpace(strings.TrimSpace(a.LastName) + " " + strings.TrimSpace(a.Initials))
		if name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}

// collectAffiliations 汇总所有作者的机构信息并去重，保持首次出现的顺序。
func collectAffiliations(authors []authorXML) string {
	seen := make(map[string]bool)
	var parts []string
	for _, a := range authors {
		for _, aff := range a.Affiliations {
			if aff = strings.TrimSpace(aff); aff != "" && !seen[aff] {
				seen[aff] = true
				parts = append(parts, aff)
			}
		}
	}
	return strings.Join(parts, " | ")
}
