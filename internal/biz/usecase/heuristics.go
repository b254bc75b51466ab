package usecase

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// Shared text classifiers. The trigger engine and the planner must agree
// on what "unfinished" and "low value" mean, so both only call these.

var (
	trailingContinuationRe = regexp.MustCompile(`(?i)([,，、:：;；]|\.\.\.|…|然后|而且|但是|可是|所以|因为|还有|就是|或者|并且|以及|比如|\b(and|but|so|because|or|then)\b)\s*$`)
	terminalPunctRe        = regexp.MustCompile(`[。.!！?？~～)）」”"'’]$`)
	lowValueRe             = regexp.MustCompile(`(?i)^(嗯+|哦+|噢+|啊+|哈+|呵+|嘿+|哇+|唔+|额+|emm+|hmm+|ok+|okay|k+|好+的?|好吧|行吧?|收到|了解|知道了|懂了|是的?|对+|草+|6+|233+|h+|lol|lmao|xswl|笑死|\+1|1+)$`)
	closingRe              = regexp.MustCompile(`(?i)^(好的?|好吧|行|ok|okay|嗯嗯?|谢谢|多谢|感谢|thx|thanks|thank you|拜拜|再见|晚安|bye|good ?night|先这样|那先这样|没事了|没问题了|明白了|知道了|懂了|收到)(啦|了|哈|呀|哦|啊|你|~|～|!|！|。|\.|\s)*$`)
	stripSymbolsRe         = regexp.MustCompile(`[\p{P}\p{S}\s]+`)
)

const shortUnpunctuatedRunes = 12

// LooksUnfinished reports whether the sender seems to be mid-sentence:
// a trailing comma or conjunction, or short text without terminal
// punctuation.
func LooksUnfinished(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if trailingContinuationRe.MatchString(text) {
		return true
	}
	return utf8.RuneCountInString(text) <= shortUnpunctuatedRunes && !terminalPunctRe.MatchString(text)
}

// EndsMidSentence reports whether text stops on a comma, ellipsis or
// conjunction. Short text without punctuation does not count.
func EndsMidSentence(text string) bool {
	return trailingContinuationRe.MatchString(strings.TrimSpace(text))
}

// IsLowValue reports whether text is filler: interjections, laughter,
// bare acknowledgements, or only punctuation and emoji. Every
// whitespace-separated word must be filler.
func IsLowValue(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		bare := stripSymbolsRe.ReplaceAllString(w, "")
		if bare == "" {
			continue
		}
		if !lowValueRe.MatchString(bare) {
			return false
		}
	}
	return true
}

// IsClosing reports whether text is a farewell or wrap-up acknowledgement
func IsClosing(text string) bool {
	return closingRe.MatchString(strings.TrimSpace(text))
}

// IsQuestion reports whether text carries a question mark
func IsQuestion(text string) bool {
	return strings.ContainsAny(text, "?？")
}

var (
	helpKeywords      = []string{"帮", "怎么", "如何", "为什么", "为啥", "咋", "请问", "求助", "教教", "help", "how", "why"}
	techKeywords      = []string{"bot", "机器人", "代码", "报错", "错误", "bug", "编译", "部署", "服务器", "接口", "api", "python", "golang", "java", "sql", "linux", "docker", "git", "配置", "安装", "脚本", "天气", "汇率", "计算", "翻译", "查一下", "搜一下", "几点", "error", "exception", "crash", "deploy", "compile", "script", "gpt", "llm"}
	gratitudeKeywords = []string{"谢谢", "感谢", "多谢", "thx", "thanks", "thank you"}
	highValueKeywords = []string{"记得", "上次", "之前", "我是谁", "我叫", "推荐", "总结", "解释", "分析", "remember", "last time", "recommend", "explain", "summary", "summarize"}
)

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clampMs(v, lo, hi int64) int64 {
	if v <= 0 {
		return 0
	}
	if lo > 0 && v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// seedHash is 32-bit FNV-1a over s
func seedHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// stableRatio folds a seed hash into [0,1)
func stableRatio(s string) float64 {
	return float64(seedHash(s)) / 4294967296.0
}

// TurnSeed builds the reproducible seed string of an event
func TurnSeed(e *domain.ChatEvent, text string) string {
	var ms int64
	if !e.Time.IsZero() {
		ms = e.Time.UnixMilli()
	}
	return strings.Join([]string{string(e.Scope), e.UserID, e.GroupID, strconv.FormatInt(ms, 10), text}, "|")
}

// TurnSeedValue is the numeric seed handed to the generator
func TurnSeedValue(e *domain.ChatEvent, text string) uint32 {
	return seedHash(TurnSeed(e, text))
}

// groupNumber maps a group id to a number: numeric ids are used as is,
// anything else is hashed.
func groupNumber(groupID string) uint64 {
	if n, err := strconv.ParseUint(groupID, 10, 64); err == nil {
		return n
	}
	return uint64(seedHash(groupID))
}
