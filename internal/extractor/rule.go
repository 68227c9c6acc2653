package extractor

import (
	"context"
	"regexp"

	"leukemialens-go/pkg/log"
)

// patternEntry 是一条 "标签 -> 匹配模式" 规则。
type patternEntry struct {
	Label string
	Match *regexp.Regexp
}

// treatmentEntry 额外携带参考表信息与一个可选的排除模式。
// Go 的 RE2 不支持负向前瞻，因此 "FLAG 但不是 FLAG-IDA" 这类规则
// 通过先用 Unless 把特化形式从文本中抹掉、再匹配通用模式来实现。
type treatmentEntry struct {
	Code   string
	Name   string
	Type   string
	Match  *regexp.Regexp
	Unless *regexp.Regexp
}

// TreatmentInfo 暴露给参考表种子程序的治疗条目描述。
type TreatmentInfo struct {
	Code string
	Name string
	Type string
}

// RuleExtractor 基于正则规则表做抽取，无外部依赖，结果完全确定。
type RuleExtractor struct {
	mutations  []patternEntry
	topics     []patternEntry
	subtypes   []patternEntry
	treatments []treatmentEntry

	complexKaryotype []*regexp.Regexp
	transplant       *regexp.Regexp
}

// NewRuleExtractor 构造规则抽取器，规则表为实例私有。
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{
		mutations:        mutationTable(),
		topics:           topicTable(),
		subtypes:         subtypeTable(),
		treatments:       treatmentTable(),
		complexKaryotype: complexKaryotypePatterns(),
		transplant:       regexp.MustCompile(`(?i)\b(HSCT|stem cell transplant(ation)?|bone marrow transplant(ation)?|allogeneic|autologous)\b`),
	}
}

func (e *RuleExtractor) Method() string {
	return MethodRegex
}

// Extract 按规则表顺序扫描文本。每条规则至多产出一个标签，因此天然去重。
// 某张规则表内部出错时只有该表降级为空结果，其余表照常产出。
func (e *RuleExtractor) Extract(_ context.Context, text string) (Metadata, error) {
	if text == "" {
		return Metadata{}, nil
	}

	md := Metadata{
		Mutations:       scanTable("mutations", e.mutations, text),
		Topics:          scanTable("topics", e.topics, text),
		DiseaseSubtypes: scanTable("subtypes", e.subtypes, text),
		Treatments:      e.scanTreatments(text),
	}

	for _, p := range e.complexKaryotype {
		if p.MatchString(text) {
			md.HasComplexKaryotype = true
			break
		}
	}
	md.TransplantContext = e.transplant.MatchString(text)

	return md, nil
}

// scanTable 扫描一张规则表，表内 panic 时降级为空结果。
func scanTable(name string, table []patternEntry, text string) (labels []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[RuleExtractor] 规则表 %s 扫描失败，该表降级为空: %v", name, r)
			labels = nil
		}
	}()

	for _, entry := range table {
		if entry.Match.MatchString(text) {
			labels = append(labels, entry.Label)
		}
	}
	return labels
}

func (e *RuleExtractor) scanTreatments(text string) (codes []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[RuleExtractor] 规则表 treatments 扫描失败，该表降级为空: %v", r)
			codes = nil
		}
	}()

	for _, tr := range e.treatments {
		candidate := text
		if tr.Unless != nil {
			// 先抹掉特化形式，剩余文本再匹配通用模式
			candidate = tr.Unless.ReplaceAllString(text, " ")
		}
		if tr.Match.MatchString(candidate) {
			codes = append(codes, tr.Code)
		}
	}
	return codes
}

// TreatmentCatalog 返回规则表中全部治疗条目的参考信息，供 ref_treatments 建种子用。
func (e *RuleExtractor) TreatmentCatalog() []TreatmentInfo {
	infos := make([]TreatmentInfo, 0, len(e.treatments))
	for _, t := range e.treatments {
		infos = append(infos, TreatmentInfo{Code: t.Code, Name: t.Name, Type: t.Type})
	}
	return infos
}

// mutationTable 覆盖白血病文献中最常报道的基因突变。
func mutationTable() []patternEntry {
	genes := []string{
		"FLT3", "NPM1", "IDH1", "IDH2", "TP53", "KIT", "CEBPA", "RUNX1",
		"ASXL1", "DNMT3A", "TET2", "KRAS", "NRAS", "WT1", "SF3B1", "GATA2",
	}
	table := make([]patternEntry, 0, len(genes)+2)
	for _, g := range genes {
		table = append(table, patternEntry{
			Label: g,
			Match: regexp.MustCompile(`(?i)\b` + g + `\b`),
		})
	}
	// 融合基因允许连字符或空格分隔
	table = append(table,
		patternEntry{Label: "BCR-ABL1", Match: regexp.MustCompile(`(?i)\bBCR[- ]?ABL1?\b`)},
		patternEntry{Label: "PML-RARA", Match: regexp.MustCompile(`(?i)\bPML[- ]?RARA\b`)},
	)
	return table
}

func topicTable() []patternEntry {
	return []patternEntry{
		{"Data Science/AI", regexp.MustCompile(`(?i)\b(machine learning|deep learning|artificial intelligence|neural network)\b`)},
		{"Cell Therapy", regexp.MustCompile(`(?i)\bcell therap(y|ies)\b`)},
		{"CAR-T", regexp.MustCompile(`(?i)\bCAR[- ]?T\b`)},
		{"Immunotherapy", regexp.MustCompile(`(?i)\bimmunotherap(y|ies|eutic)\b`)},
		{"Prognosis", regexp.MustCompile(`(?i)\bprognos(is|tic)\b`)},
		{"Biomarkers", regexp.MustCompile(`(?i)\bbiomarkers?\b`)},
		{"MRD", regexp.MustCompile(`(?i)\b(minimal residual disease|measurable residual disease|MRD)\b`)},
		{"Clinical Trial", regexp.MustCompile(`(?i)\b(clinical trial|phase (I{1,3}|[1-3]) (study|trial))\b`)},
		{"Transplant", regexp.MustCompile(`(?i)\btransplant(ation)?\b`)},
		{"Pediatric", regexp.MustCompile(`(?i)\b(pediatric|paediatric|childhood)\b`)},
		{"Relapsed", regexp.MustCompile(`(?i)\brelaps(e|ed|ing)\b`)},
		{"Refractory", regexp.MustCompile(`(?i)\brefractory\b`)},
		{"Epidemiology", regexp.MustCompile(`(?i)\b(epidemiolog(y|ical)|incidence|prevalence)\b`)},
	}
}

// subtypeTable 的缩写按大小写敏感匹配（"ALL" 不能命中普通单词 all），全称不限大小写。
func subtypeTable() []patternEntry {
	return []patternEntry{
		{"AML", regexp.MustCompile(`\bAML\b|(?i:\bacute myeloid leuka?emia\b)`)},
		{"CML", regexp.MustCompile(`\bCML\b|(?i:\bchronic myelo(id|genous) leuka?emia\b)`)},
		{"ALL", regexp.MustCompile(`\bALL\b|(?i:\bacute lymphoblastic leuka?emia\b)`)},
		{"CLL", regexp.MustCompile(`\bCLL\b|(?i:\bchronic lymphocytic leuka?emia\b)`)},
		{"MDS", regexp.MustCompile(`\bMDS\b|(?i:\bmyelodysplastic syndromes?\b)`)},
	}
}

func treatmentTable() []treatmentEntry {
	return []treatmentEntry{
		// 组合方案在单药之前声明，排除模式依赖这一顺序语义之外仍能独立成立
		{Code: "7+3", Name: "7+3 Induction", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\b7\s*\+\s*3\b`)},
		{Code: "VEN-AZA", Name: "Venetoclax + Azacitidine", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bVEN[- ]?AZA\b`)},
		{Code: "VEN-DEC", Name: "Venetoclax + Decitabine", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bVEN[- ]?DEC\b`)},
		{Code: "VEN-LDAC", Name: "Venetoclax + Low-Dose Cytarabine", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bVEN[- ]?LDAC\b`)},
		{Code: "FLAG-IDA", Name: "FLAG-IDA", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bFLAG[- ]?IDA\b`)},
		{Code: "FLAG", Name: "FLAG", Type: "protocol",
			Match:  regexp.MustCompile(`(?i)\bFLAG\b`),
			Unless: regexp.MustCompile(`(?i)\bFLAG[- ]?IDA\b`)},
		{Code: "HYPER-CVAD", Name: "Hyper-CVAD", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bhyper[- ]?CVAD\b`)},
		{Code: "CPX-351", Name: "CPX-351 (Liposomal Daunorubicin/Cytarabine)", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bCPX[- ]?351\b`)},
		{Code: "R-CHOP", Name: "R-CHOP", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bR[- ]CHOP\b`)},
		{Code: "FCR", Name: "Fludarabine + Cyclophosphamide + Rituximab", Type: "protocol",
			Match: regexp.MustCompile(`\bFCR\b`)},
		{Code: "MEC", Name: "Mitoxantrone + Etoposide + Cytarabine", Type: "protocol",
			Match: regexp.MustCompile(`\bMEC\b`)},
		{Code: "CLAG-M", Name: "CLAG-M", Type: "protocol",
			Match: regexp.MustCompile(`(?i)\bCLAG[- ]?M\b`)},

		{Code: "VENETOCLAX", Name: "Venetoclax", Type: "drug",
			Match:  regexp.MustCompile(`(?i)\b(venetoclax|VEN)\b`),
			Unless: regexp.MustCompile(`(?i)\bVEN[- ](AZA|DEC|LDAC)\b`)},
		{Code: "AZACITIDINE", Name: "Azacitidine", Type: "drug",
			Match:  regexp.MustCompile(`(?i)\b(azacitidine|AZA)\b`),
			Unless: regexp.MustCompile(`(?i)\bVEN[- ]?AZA\b`)},
		{Code: "DECITABINE", Name: "Decitabine", Type: "drug",
			Match:  regexp.MustCompile(`(?i)\b(decitabine|DAC)\b`),
			Unless: regexp.MustCompile(`(?i)\bVEN[- ]?DEC\b`)},
		{Code: "CYTARABINE", Name: "Cytarabine", Type: "drug",
			Match: regexp.MustCompile(`(?i)\b(cytarabine|ara[- ]?C|LDAC)\b`)},
		{Code: "DAUNORUBICIN", Name: "Daunorubicin", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bdaunorubicin\b`)},
		{Code: "IDARUBICIN", Name: "Idarubicin", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bidarubicin\b`)},
		{Code: "MIDOSTAURIN", Name: "Midostaurin", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bmidostaurin\b`)},
		{Code: "GILTERITINIB", Name: "Gilteritinib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bgilteritinib\b`)},
		{Code: "QUIZARTINIB", Name: "Quizartinib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bquizartinib\b`)},
		{Code: "IVOSIDENIB", Name: "Ivosidenib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bivosidenib\b`)},
		{Code: "ENASIDENIB", Name: "Enasidenib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\benasidenib\b`)},
		{Code: "GEMTUZUMAB", Name: "Gemtuzumab Ozogamicin", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bgemtuzumab( ozogamicin)?\b`)},
		{Code: "IMATINIB", Name: "Imatinib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bimatinib\b`)},
		{Code: "DASATINIB", Name: "Dasatinib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bdasatinib\b`)},
		{Code: "NILOTINIB", Name: "Nilotinib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bnilotinib\b`)},
		{Code: "PONATINIB", Name: "Ponatinib", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bponatinib\b`)},
		{Code: "BLINATUMOMAB", Name: "Blinatumomab", Type: "drug",
			Match: regexp.MustCompile(`(?i)\bblinatumomab\b`)},
		{Code: "INOTUZUMAB", Name: "Inotuzumab Ozogamicin", Type: "drug",
			Match: regexp.MustCompile(`(?i)\binotuzumab( ozogamicin)?\b`)},
		{Code: "RITUXIMAB", Name: "Rituximab", Type: "drug",
			Match: regexp.MustCompile(`(?i)\brituximab\b`)},
		{Code: "ATRA", Name: "All-Trans Retinoic Acid", Type: "drug",
			Match: regexp.MustCompile(`(?i)\b(ATRA|all[- ]trans retinoic acid|tretinoin)\b`)},
	}
}

func complexKaryotypePatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcomplex (karyotype|cytogenetics)\b`),
		regexp.MustCompile(`(?i)(>=|≥|greater than or equal to)\s*3\s*(chromosomal\s+)?abnormalities`),
	}
}
