package rag

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// minQueryLength 优化后查询的最短长度，短于此值时保留原查询
const minQueryLength = 3

// maxSuggestions 备选问法上限
const maxSuggestions = 5

// stopWords 常见停用词
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"this": true, "these": true, "those": true,
}

// acronym 缩写及其展开
type acronym struct {
	short     string
	expansion string
	pattern   *regexp.Regexp
}

func newAcronym(short, expansion string) acronym {
	return acronym{
		short:     short,
		expansion: expansion,
		pattern:   regexp.MustCompile(`\b` + regexp.QuoteMeta(short) + `\b`),
	}
}

// acronyms 按固定顺序展开
var acronyms = []acronym{
	newAcronym("AI", "artificial intelligence"),
	newAcronym("ML", "machine learning"),
	newAcronym("API", "application programming interface"),
	newAcronym("REST", "representational state transfer"),
	newAcronym("HTTP", "hypertext transfer protocol"),
	newAcronym("JSON", "javascript object notation"),
	newAcronym("SQL", "structured query language"),
	newAcronym("NoSQL", "not only structured query language"),
	newAcronym("LLM", "large language model"),
	newAcronym("RAG", "retrieval augmented generation"),
}

var (
	// strippedPunctuation 清洗时去掉的符号，保留 ? . , -
	strippedPunctuation = regexp.MustCompile(`[!@#$%^&*()+=\[\]{}|;':"<>]`)
	conjunctionPattern  = regexp.MustCompile(`(?i)\b(and|or|but|however|therefore)\b`)
	sentenceSplit       = regexp.MustCompile(`[.!?]+`)
	camelCasePattern    = regexp.MustCompile(`[a-z]{2}[A-Z]`)
	digitLetterPattern  = regexp.MustCompile(`\d[a-zA-Z]`)
	longWordPattern     = regexp.MustCompile(`[a-zA-Z]{15,}`)
	alphaWordPattern    = regexp.MustCompile(`^[a-z]+$`)
)

// 分析警告
const (
	WarningTooShort   = "Query is very short and may not provide enough context"
	WarningTooLong    = "Query is very long and may be too complex"
	WarningSingleWord = "Query is a single word and may be ambiguous"
	WarningStopWords  = "Query contains mostly common words"
	WarningTypos      = "Query may contain spelling or formatting errors"
)

// QueryOptimizer 查询改写与分析，纯函数，无副作用
type QueryOptimizer struct {
	logger *slog.Logger
}

// NewQueryOptimizer 创建查询优化器
func NewQueryOptimizer() *QueryOptimizer {
	return &QueryOptimizer{
		logger: log.NewModuleLogger("rag", "optimizer"),
	}
}

// Optimize 改写查询，返回新请求，租户与选项不变
// 内部出错时退回原查询
func (o *QueryOptimizer) Optimize(req *domainRAG.QueryRequest) (out *domainRAG.QueryRequest) {
	out = req.Clone()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Query optimization panicked, using original query",
				"tenant_id", req.TenantID,
				"panic", r,
			)
			out = req.Clone()
		}
	}()

	out.Query = o.rewrite(req.Query)
	if out.Query != req.Query {
		o.logger.Debug("Query optimized",
			"tenant_id", req.TenantID,
			"original", req.Query,
			"optimized", out.Query,
		)
	}
	return out
}

// rewrite 清洗、展开缩写、截断
func (o *QueryOptimizer) rewrite(query string) string {
	optimized := collapseWhitespace(query)
	optimized = collapseWhitespace(strippedPunctuation.ReplaceAllString(optimized, " "))
	optimized = expandAcronyms(optimized)
	optimized = truncateRunes(optimized, domainRAG.MaxQueryLength)

	if len([]rune(optimized)) < minQueryLength {
		return query
	}
	return optimized
}

// expandAcronyms 将缩写展开为 "expansion (ACR)"，已包含展开词时跳过
func expandAcronyms(query string) string {
	lower := strings.ToLower(query)
	for _, a := range acronyms {
		if strings.Contains(lower, a.expansion) {
			continue
		}
		query = a.pattern.ReplaceAllString(query, a.expansion+" ("+a.short+")")
	}
	return query
}

// Analyze 分析查询
func (o *QueryOptimizer) Analyze(query string) *domainRAG.QueryAnalysis {
	analysis := &domainRAG.QueryAnalysis{
		Query:       query,
		Complexity:  domainRAG.ComplexitySimple,
		Warnings:    []string{},
		Keywords:    []string{},
		Suggestions: []string{},
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return analysis
	}

	words := strings.Fields(trimmed)
	analysis.CharCount = len([]rune(query))
	analysis.WordCount = len(words)

	switch {
	case analysis.CharCount < minQueryLength:
		analysis.Warnings = append(analysis.Warnings, WarningTooShort)
		analysis.Suggestions = append(analysis.Suggestions, "Try adding more specific details or context to your question")
	case analysis.CharCount > domainRAG.MaxQueryLength:
		analysis.Warnings = append(analysis.Warnings, WarningTooLong)
		analysis.Suggestions = append(analysis.Suggestions, "Try breaking down your question into more specific parts")
	}
	if len(words) == 1 {
		analysis.Warnings = append(analysis.Warnings, WarningSingleWord)
	}
	if onlyStopWords(words) {
		analysis.Warnings = append(analysis.Warnings, WarningStopWords)
		analysis.Suggestions = append(analysis.Suggestions, "Add more specific terms related to your topic")
	}
	if containsAcronym(trimmed) {
		analysis.Suggestions = append(analysis.Suggestions, "Consider spelling out acronyms for better matching")
	}
	if looksLikeTypo(trimmed) {
		analysis.Warnings = append(analysis.Warnings, WarningTypos)
		analysis.Suggestions = append(analysis.Suggestions, "Check for potential spelling errors")
	}

	analysis.Complexity = classifyComplexity(trimmed, len(words))
	analysis.Keywords = ExtractKeywords(trimmed)
	return analysis
}

// SuggestAlternatives 生成备选问法，最多 5 个
func (o *QueryOptimizer) SuggestAlternatives(query string) []string {
	q := strings.TrimSpace(query)
	if q == "" {
		return []string{}
	}

	alternatives := make([]string, 0, 6)
	if !strings.HasSuffix(q, "?") {
		lower := strings.ToLower(q)
		alternatives = append(alternatives,
			"What is "+lower+"?",
			"How does "+lower+" work?",
			"Tell me about "+lower,
		)
	}
	alternatives = append(alternatives,
		q+" examples",
		q+" definition",
		q+" best practices",
	)

	if len(alternatives) > maxSuggestions {
		alternatives = alternatives[:maxSuggestions]
	}
	return alternatives
}

// ExtractKeywords 提取关键词：小写、纯字母、长度不少于 3、非停用词，按出现顺序去重
func ExtractKeywords(query string) []string {
	keywords := []string{}
	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) })
		if len(word) < 3 || stopWords[word] || seen[word] || !alphaWordPattern.MatchString(word) {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	return keywords
}

// classifyComplexity 按词数、句数和连接词判断复杂度
func classifyComplexity(query string, wordCount int) domainRAG.Complexity {
	if wordCount < 3 {
		return domainRAG.ComplexitySimple
	}

	sentences := 0
	for _, s := range sentenceSplit.Split(query, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	if wordCount < 8 && sentences <= 1 && !conjunctionPattern.MatchString(query) {
		return domainRAG.ComplexityModerate
	}
	return domainRAG.ComplexityComplex
}

func onlyStopWords(words []string) bool {
	for _, w := range words {
		if !stopWords[strings.ToLower(w)] {
			return false
		}
	}
	return len(words) > 0
}

func containsAcronym(query string) bool {
	for _, a := range acronyms {
		if a.pattern.MatchString(query) {
			return true
		}
	}
	return false
}

func looksLikeTypo(query string) bool {
	return camelCasePattern.MatchString(query) ||
		digitLetterPattern.MatchString(query) ||
		strings.Contains(query, "..") ||
		longWordPattern.MatchString(query)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes 按字符截断
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
